package federation

import "encoding/json"

// decodePayload best-effort decodes a JSON object payload into row, leaving
// row untouched on any decode failure or non-object payload.
func decodePayload(payload []byte, row Row) {
	if len(payload) == 0 {
		return
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return
	}
	for k, v := range decoded {
		row[k] = v
	}
}
