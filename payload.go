package inform

import (
	"bytes"
	"encoding/json"
	"io"
	"unicode/utf8"
)

// DecodePayload parses the final payload bytes as a single JSON value.
// Numbers are kept as json.Number, so integers survive unchanged.
func DecodePayload(data []byte) (interface{}, error) {
	if !utf8.Valid(data) {
		return nil, &PayloadError{Err: errInvalidUTF8}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, &PayloadError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &PayloadError{Err: errTrailingData}
	}
	return v, nil
}
