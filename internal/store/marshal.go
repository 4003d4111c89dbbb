package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/navguard/internal/ir"
)

// marshalDetail converts event detail to canonical JSON TEXT.
// A nil detail is stored as "{}".
func marshalDetail(detail ir.IRObject) (string, error) {
	if detail == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	return string(data), nil
}

// unmarshalDetail parses stored detail. "{}" reads back as nil so an event
// round-trips unchanged.
func unmarshalDetail(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	return obj, nil
}
