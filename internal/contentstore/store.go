package contentstore

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Store is a content-addressed JSON store
type Store interface {
	// Put stores the compact JSON encoding of v and returns its content id
	Put(ctx context.Context, v interface{}) (string, error)
	// Get returns the JSON stored under id
	Get(ctx context.Context, id string) (json.RawMessage, error)
}

// Decode unmarshals raw into out, reporting malformed bodies as DECODE_ERROR
func Decode(raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return utils.WrapError(utils.ErrCodeDecode, "Malformed content", err)
	}
	return nil
}

// encode produces the canonical bytes for v
func encode(v interface{}) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Content is not valid JSON", "")
		}
		return compact(raw)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeValidation, "Content is not JSON-serializable", err)
	}
	return body, nil
}

// compact strips insignificant whitespace and keeps numbers as written
func compact(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, utils.WrapError(utils.ErrCodeValidation, "Content is not valid JSON", err)
	}
	return buf.Bytes(), nil
}

// validate checks fetched bytes are JSON
func validate(id string, body []byte) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Content is not valid JSON", id)
	}
	return json.RawMessage(body), nil
}
