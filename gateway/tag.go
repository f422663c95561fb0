package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeTag normalises the shapes a variant arrives in from the bridge:
// a bare string "Joined", an object {"tag":"Joined"} or a single-key
// object {"Joined":{}}.
func decodeTag(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("missing variant tag: %w", ErrMalformedMessage)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("variant %s: %w", raw, ErrMalformedMessage)
	}
	if t, ok := obj["tag"]; ok {
		if err := json.Unmarshal(t, &s); err != nil {
			return "", fmt.Errorf("variant tag %s: %w", t, ErrMalformedMessage)
		}
		return s, nil
	}
	if len(obj) == 1 {
		for k := range obj {
			return k, nil
		}
	}
	return "", fmt.Errorf("variant %s: %w", raw, ErrMalformedMessage)
}
