package ir

import "encoding/json"

func toolFromFields(name, description string, schema interface{}) Tool {
	var raw json.RawMessage
	if schema != nil {
		if b, err := json.Marshal(schema); err == nil {
			raw = b
		}
	}
	return Tool{Name: name, Description: description, InputSchema: raw}
}

// tryUnmarshal attempts to decode s as JSON into out. Returns false
// (and leaves out untouched) on malformed JSON, per spec §4.1's
// "keep raw string on parse failure" failure mode.
func tryUnmarshal(s string, out *interface{}) bool {
	if s == "" {
		return false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return false
	}
	*out = v
	return true
}
