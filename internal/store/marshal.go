package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/flowrl/internal/model"
)

// Well-known keys.
const (
	KeyDeviceID      = "FlowRLDefaultIdKey"
	KeyConfiguration = "FlowRLConfiguration"
	KeyEvents        = "FlowRLEvents"
)

// GetJSON reads key and decodes it into v.
// Returns found=false when the key is absent. A value that does not decode is
// reported as a storage error.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, model.WrapError(model.CodeStorage, fmt.Sprintf("decode %q", key), err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return model.WrapError(model.CodeStorage, fmt.Sprintf("encode %q", key), err)
	}
	return s.Set(ctx, key, data)
}
