package federation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/datapunk/lake/pkg/cache"
	"github.com/datapunk/lake/pkg/types"
)

// ExecuteCached runs Execute through the Executor's result cache (if one
// was configured), collapsing concurrent identical queries via the cache's
// single-flight group and serving cached rows for repeat queries. Only
// fully-successful (StatusOK) results are cached — a partial or failed
// result reflects a transient source outage, not a stable answer worth
// memoizing, so it's returned straight through without being stored.
func (e *Executor) ExecuteCached(ctx context.Context, key cache.Key, consistency cache.Consistency, ttl time.Duration, plan *types.QueryPlan, sources []types.DataSource) (*Result, error) {
	if e.cache == nil {
		return e.Execute(ctx, plan, sources)
	}

	data, err := e.cache.GetOrCompute(ctx, key, consistency, ttl, func(ctx context.Context) ([]byte, error) {
		result, err := e.Execute(ctx, plan, sources)
		if err != nil {
			return nil, err
		}
		if result.Status != StatusOK {
			return nil, &skipCacheError{result: result}
		}
		return json.Marshal(result.Rows)
	})
	var skip *skipCacheError
	if errors.As(err, &skip) {
		return skip.result, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return &Result{Status: StatusOK, Rows: rows}, nil
}

// skipCacheError carries a non-OK result out of the single-flight compute,
// so every caller sharing that computation receives the same result.
type skipCacheError struct{ result *Result }

func (*skipCacheError) Error() string { return "federation: result not eligible for caching" }
