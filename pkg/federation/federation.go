// Package federation implements C6: splitting a query plan into per-source
// sub-plans, dispatching them across a bounded worker pool with retry and
// circuit-breaking, and merging the results back into a single record set.
//
// Sub-plans only ever cover a single Scan (plus whatever Filter the
// optimizer's predicate push-down already pinned to that scan) — anything
// the source itself cannot resolve (joins across sources, cross-source
// filters, aggregation, sort, limit, projection) is evaluated here, in the
// coordinator, over the rows each source returned. This mirrors the
// optimizer's own simplification: plans carry opaque predicate/column text,
// not a real logical-algebra tree, so the coordinator's evaluator is
// necessarily a best-effort interpreter of that text rather than a full
// relational engine.
package federation

import "github.com/datapunk/lake/pkg/types"

// Row is one record's data addressed by column name, the shape the
// coordinator's filter/join/aggregate evaluators operate on. SourceExecutor
// implementations are responsible for turning whatever their backend
// returns into Rows.
type Row map[string]any

// recordToRow extracts a Row from a types.Record: its JSON-encoded Payload
// supplies column values (decode failures yield an empty row, not an
// error — a source returning non-JSON payloads simply isn't joinable or
// filterable at the coordinator, only scannable), and Tags/ID/Timestamp are
// always available as columns.
func recordToRow(r types.Record) Row {
	row := Row{}
	decodePayload(r.Payload, row)
	for k, v := range r.Tags {
		row[k] = v
	}
	row["id"] = r.ID
	row["timestamp"] = r.Timestamp
	return row
}
