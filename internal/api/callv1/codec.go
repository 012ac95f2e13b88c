package callv1

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Codec serializes CallService messages as plain JSON. Messages are Go
// structs, so the default protobuf codecs cannot be used.
type Codec struct{}

// Name implements connect.Codec. It replaces the built-in "json" codec.
func (Codec) Name() string {
	return "json"
}

// Marshal implements connect.Codec.
func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return data, nil
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero message.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
