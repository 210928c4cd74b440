package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps a gRPC connection to a peer node's ClusterControl service,
// using the JSON codec so no generated stub is required.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr. If tlsConfig is nil the connection is insecure,
// suitable only for local development clusters; production deployments
// should always pass a tlsConfig built from pkg/security's CA.
func Dial(addr string, tlsConfig *tls.Config) (*Client, error) {
	var creds grpc.DialOption
	if tlsConfig != nil {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(addr, creds, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Join asks the peer (expected to be the current leader) to admit the
// caller as a new Raft voter.
func (c *Client) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp := new(JoinResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Join", req, resp); err != nil {
		return nil, fmt.Errorf("join rpc: %w", err)
	}
	return resp, nil
}

// Heartbeat pushes a resource-metrics snapshot to the peer.
func (c *Client) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp := new(HeartbeatResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Heartbeat", req, resp); err != nil {
		return nil, fmt.Errorf("heartbeat rpc: %w", err)
	}
	return resp, nil
}

// Replicate ships a partition write to the peer acting as a replica.
func (c *Client) Replicate(ctx context.Context, req *ReplicateRequest) (*ReplicateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp := new(ReplicateResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Replicate", req, resp); err != nil {
		return nil, fmt.Errorf("replicate rpc: %w", err)
	}
	return resp, nil
}
