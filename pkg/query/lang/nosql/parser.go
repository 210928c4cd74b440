// Package nosql implements C4's MongoDB-style dialect: a JSON query document
// naming an operation (find-style query, aggregation pipeline, geospatial,
// text search, graph traversal, MapReduce, time-series window) compiled to a
// types.QueryPlan. Query bodies are standard JSON — parsed with
// encoding/json rather than a hand-rolled JSON grammar, since the dialect's
// job is validating and compiling the document shape, not re-implementing
// JSON syntax the standard library already parses correctly.
package nosql

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/datapunk/lake/pkg/query/lang"
	"github.com/datapunk/lake/pkg/types"
)

// filterOperators is the allowed operator set inside a filter document's
// comparison objects, e.g. {"age": {"gt": 21}}.
var filterOperators = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "nin": true, "and": true, "or": true, "not": true,
	"exists": true, "regex": true,
}

var pipelineStages = map[string]bool{
	"match": true, "group": true, "sort": true, "project": true,
	"lookup": true, "unwind": true, "limit": true, "skip": true, "out": true,
}

// Parse compiles one NoSQL query document into a QueryPlan.
func Parse(src string) (*types.QueryPlan, *lang.ParseError) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, &lang.ParseError{Kind: lang.ParseErrorSyntax, Line: 1, Column: 1,
			Message: "invalid JSON query document: " + err.Error()}
	}

	op, _ := doc["op"].(string)
	switch op {
	case "query", "":
		return parseQuery(doc)
	case "aggregate":
		return parseAggregate(doc)
	case "geo_near":
		return parseExtension(doc, "near", []string{"collection", "near", "max_distance"})
	case "text_search":
		return parseExtension(doc, "text_search", []string{"collection", "query"})
	case "graph_traversal":
		return parseGraphTraversal(doc)
	case "map_reduce":
		return parseMapReduce(doc)
	case "time_series_window":
		return parseTimeSeriesWindow(doc)
	default:
		return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
			Message: fmt.Sprintf("unknown op %q", op)}
	}
}

func stringField(doc map[string]any, key string) (string, *lang.ParseError) {
	v, ok := doc[key]
	if !ok {
		return "", &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
			Message: "missing required field " + key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
			Message: "field " + key + " must be a string"}
	}
	return s, nil
}

// parseQuery handles the core find-style shape:
// {op, collection, filter?, projection?, sort?, limit?, skip?}.
func parseQuery(doc map[string]any) (*types.QueryPlan, *lang.ParseError) {
	collection, err := stringField(doc, "collection")
	if err != nil {
		return nil, err
	}

	var node *types.PlanNode = &types.PlanNode{Kind: types.PlanScan, ID: "scan:" + collection, Source: collection}

	if filter, ok := doc["filter"].(map[string]any); ok && len(filter) > 0 {
		pred, err := validateFilter(filter)
		if err != nil {
			return nil, err
		}
		node = &types.PlanNode{Kind: types.PlanFilter, ID: "filter", Predicate: canonicalJSON(pred), Input: node}
	}

	if sortDoc, ok := doc["sort"].(map[string]any); ok && len(sortDoc) > 0 {
		node = &types.PlanNode{Kind: types.PlanSort, ID: "sort", SortKeys: sortKeysFromDoc(sortDoc), Input: node}
	}

	if skip, ok := numberField(doc, "skip"); ok && skip > 0 {
		// modeled as a limit node with a negative marker consumed by the
		// executor as an offset; kept simple since types.PlanNode has no
		// dedicated offset field.
		node = &types.PlanNode{Kind: types.PlanLimit, ID: "skip", N: -int64(skip), Input: node}
	}
	if limit, ok := numberField(doc, "limit"); ok {
		node = &types.PlanNode{Kind: types.PlanLimit, ID: "limit", N: int64(limit), Input: node}
	}

	if projection, ok := doc["projection"].(map[string]any); ok && len(projection) > 0 {
		node = &types.PlanNode{Kind: types.PlanProject, ID: "project", Columns: projectedColumns(projection), Input: node}
	}

	return &types.QueryPlan{Root: node}, nil
}

func numberField(doc map[string]any, key string) (float64, bool) {
	v, ok := doc[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

func sortKeysFromDoc(sortDoc map[string]any) []string {
	keys := make([]string, 0, len(sortDoc))
	for k := range sortDoc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		dir := "asc"
		if n, ok := sortDoc[k].(float64); ok && n < 0 {
			dir = "desc"
		}
		out = append(out, k+" "+dir)
	}
	return out
}

func projectedColumns(projection map[string]any) []string {
	keys := make([]string, 0, len(projection))
	for k, v := range projection {
		if include, ok := v.(float64); !ok || include != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// validateFilter walks a filter document recursively, rejecting any
// operator key outside filterOperators — this is the dialect's one
// semantic (not syntactic) check, so a disallowed operator is reported as
// ParseErrorValidation rather than ParseErrorSyntax.
func validateFilter(filter map[string]any) (map[string]any, *lang.ParseError) {
	for field, v := range filter {
		switch val := v.(type) {
		case map[string]any:
			for opKey, opVal := range val {
				if !filterOperators[opKey] {
					return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
						Message: fmt.Sprintf("unsupported filter operator %q on field %q", opKey, field)}
				}
				if opKey == "and" || opKey == "or" {
					clauses, ok := opVal.([]any)
					if !ok {
						return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
							Message: opKey + " requires an array of sub-filters"}
					}
					for _, c := range clauses {
						cm, ok := c.(map[string]any)
						if !ok {
							return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
								Message: opKey + " sub-filter must be an object"}
						}
						if _, err := validateFilter(cm); err != nil {
							return nil, err
						}
					}
				}
			}
		}
	}
	return filter, nil
}

func canonicalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// parseAggregate handles {op:"aggregate", collection, pipeline:[{stage:{}},...]}.
func parseAggregate(doc map[string]any) (*types.QueryPlan, *lang.ParseError) {
	collection, err := stringField(doc, "collection")
	if err != nil {
		return nil, err
	}
	rawPipeline, ok := doc["pipeline"].([]any)
	if !ok {
		return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
			Message: "aggregate requires a pipeline array"}
	}

	node := &types.PlanNode{Kind: types.PlanScan, ID: "scan:" + collection, Source: collection}

	for i, raw := range rawPipeline {
		stageDoc, ok := raw.(map[string]any)
		if !ok || len(stageDoc) != 1 {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
				Message: fmt.Sprintf("pipeline stage %d must be a single-key object", i)}
		}
		var stageName string
		var stageBody any
		for k, v := range stageDoc {
			stageName, stageBody = k, v
		}
		if !pipelineStages[stageName] {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
				Message: fmt.Sprintf("unsupported pipeline stage %q", stageName)}
		}
		var perr *lang.ParseError
		node, perr = applyStage(node, stageName, stageBody)
		if perr != nil {
			return nil, perr
		}
	}
	return &types.QueryPlan{Root: node}, nil
}

func applyStage(input *types.PlanNode, stage string, body any) (*types.PlanNode, *lang.ParseError) {
	switch stage {
	case "match":
		filter, ok := body.(map[string]any)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$match body must be an object"}
		}
		if _, err := validateFilter(filter); err != nil {
			return nil, err
		}
		return &types.PlanNode{Kind: types.PlanFilter, ID: "match", Predicate: canonicalJSON(filter), Input: input}, nil
	case "group":
		groupDoc, ok := body.(map[string]any)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$group body must be an object"}
		}
		groupKeys := []string{"_id"}
		var aggs []string
		for k, v := range groupDoc {
			if k == "_id" {
				continue
			}
			aggs = append(aggs, k+"="+canonicalJSON(v))
		}
		sort.Strings(aggs)
		return &types.PlanNode{Kind: types.PlanAggregate, ID: "group", GroupKeys: groupKeys, Aggs: aggs, Input: input}, nil
	case "sort":
		sortDoc, ok := body.(map[string]any)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$sort body must be an object"}
		}
		return &types.PlanNode{Kind: types.PlanSort, ID: "sort", SortKeys: sortKeysFromDoc(sortDoc), Input: input}, nil
	case "project":
		projDoc, ok := body.(map[string]any)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$project body must be an object"}
		}
		return &types.PlanNode{Kind: types.PlanProject, ID: "project", Columns: projectedColumns(projDoc), Input: input}, nil
	case "limit":
		n, ok := body.(float64)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$limit body must be a number"}
		}
		return &types.PlanNode{Kind: types.PlanLimit, ID: "limit", N: int64(n), Input: input}, nil
	case "skip":
		n, ok := body.(float64)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$skip body must be a number"}
		}
		return &types.PlanNode{Kind: types.PlanLimit, ID: "skip", N: -int64(n), Input: input}, nil
	case "unwind":
		field, ok := body.(string)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$unwind body must be a field path string"}
		}
		return &types.PlanNode{Kind: types.PlanProject, ID: "unwind", Spec: map[string]any{"unwind": field}, Input: input}, nil
	case "lookup":
		lookupDoc, ok := body.(map[string]any)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$lookup body must be an object"}
		}
		from, _ := lookupDoc["from"].(string)
		localField, _ := lookupDoc["local_field"].(string)
		foreignField, _ := lookupDoc["foreign_field"].(string)
		right := &types.PlanNode{Kind: types.PlanScan, ID: "scan:" + from, Source: from}
		return &types.PlanNode{Kind: types.PlanJoin, ID: "lookup:" + from, JoinKind: types.JoinLeft,
			Left: input, Right: right, On: localField + " = " + foreignField}, nil
	case "out":
		target, ok := body.(string)
		if !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "$out body must be a collection name"}
		}
		return &types.PlanNode{Kind: types.PlanProject, ID: "out", Spec: map[string]any{"out": target}, Input: input}, nil
	default:
		return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Message: "unsupported pipeline stage " + stage}
	}
}

// parseExtension handles the simpler geospatial/text-search extensions,
// which share the "collection + opaque spec" shape: every field in doc is
// carried verbatim into the node's Spec for the federation executor's
// source-specific translator to interpret.
func parseExtension(doc map[string]any, label string, required []string) (*types.QueryPlan, *lang.ParseError) {
	collection, err := stringField(doc, "collection")
	if err != nil {
		return nil, err
	}
	for _, f := range required {
		if _, ok := doc[f]; !ok {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
				Message: label + " requires field " + f}
		}
	}
	spec := map[string]any{}
	for k, v := range doc {
		if k == "op" || k == "collection" {
			continue
		}
		spec[k] = v
	}
	return &types.QueryPlan{Root: &types.PlanNode{
		Kind:   types.PlanScan,
		ID:     label + ":" + collection,
		Source: collection,
		Spec:   spec,
	}}, nil
}

// parseGraphTraversal handles {op:"graph_traversal", start_node,
// edge_collection, direction, max_depth}.
func parseGraphTraversal(doc map[string]any) (*types.QueryPlan, *lang.ParseError) {
	startNode, err := stringField(doc, "start_node")
	if err != nil {
		return nil, err
	}
	edgeCollection, err := stringField(doc, "edge_collection")
	if err != nil {
		return nil, err
	}
	direction, _ := doc["direction"].(string)
	if direction == "" {
		direction = "outbound"
	}
	if direction != "outbound" && direction != "inbound" && direction != "any" {
		return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
			Message: "direction must be one of outbound, inbound, any"}
	}
	maxDepth, _ := numberField(doc, "max_depth")
	if maxDepth == 0 {
		maxDepth = 1
	}
	return &types.QueryPlan{Root: &types.PlanNode{
		Kind: types.PlanGraphTraversal,
		ID:   "graph:" + edgeCollection,
		Spec: map[string]any{
			"start_node":      startNode,
			"edge_collection": edgeCollection,
			"direction":       direction,
			"max_depth":       maxDepth,
		},
	}}, nil
}

// parseMapReduce handles {op:"map_reduce", collection, map_fn, reduce_fn,
// finalize_fn?, scope?}.
func parseMapReduce(doc map[string]any) (*types.QueryPlan, *lang.ParseError) {
	collection, err := stringField(doc, "collection")
	if err != nil {
		return nil, err
	}
	mapFn, err := stringField(doc, "map_fn")
	if err != nil {
		return nil, err
	}
	reduceFn, err := stringField(doc, "reduce_fn")
	if err != nil {
		return nil, err
	}
	spec := map[string]any{"map_fn": mapFn, "reduce_fn": reduceFn}
	if finalize, ok := doc["finalize_fn"].(string); ok {
		spec["finalize_fn"] = finalize
	}
	if scope, ok := doc["scope"].(map[string]any); ok {
		spec["scope"] = scope
	}
	return &types.QueryPlan{Root: &types.PlanNode{
		Kind:   types.PlanPivotMR,
		ID:     "map_reduce:" + collection,
		Source: collection,
		Spec:   spec,
	}}, nil
}

// parseTimeSeriesWindow handles {op:"time_series_window", collection,
// window, align, agg}.
func parseTimeSeriesWindow(doc map[string]any) (*types.QueryPlan, *lang.ParseError) {
	collection, err := stringField(doc, "collection")
	if err != nil {
		return nil, err
	}
	window, err := stringField(doc, "window")
	if err != nil {
		return nil, err
	}
	align, _ := doc["align"].(string)
	if align == "" {
		align = "mean"
	}
	if align != "last" && align != "mean" && align != "sum" {
		return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: 1, Column: 1,
			Message: "align must be one of last, mean, sum"}
	}
	return &types.QueryPlan{Root: &types.PlanNode{
		Kind:   types.PlanTimeSeries,
		ID:     "time_series:" + collection,
		Source: collection,
		Spec:   map[string]any{"window": window, "align": align},
	}}, nil
}
