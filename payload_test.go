package inform

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	tt := map[string]struct {
		in  string
		out interface{}
	}{
		"object":     {`{"a":1}`, map[string]interface{}{"a": json.Number("1")}},
		"whitespace": {" \n{\"a\":\"b\"}\n ", map[string]interface{}{"a": "b"}},
		"array":      {`[1,"x",null]`, []interface{}{json.Number("1"), "x", nil}},
		"string":     {`"hi"`, "hi"},
		"big number": {`{"uptime":18446744073709551615}`, map[string]interface{}{"uptime": json.Number("18446744073709551615")}},
		"unicode":    {`{"name":"Büro"}`, map[string]interface{}{"name": "Büro"}},
	}

	for name, tc := range tt {
		tc := tc
		t.Run(name, func(t *testing.T) {
			v, err := DecodePayload([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.out, v)
		})
	}
}

func TestDecodePayloadInvalid(t *testing.T) {
	tt := map[string][]byte{
		"empty":    nil,
		"non-utf8": {'"', 0xff, 0xfe, '"'},
		"syntax":   []byte(`{"a":}`),
		"trailing": []byte(`{"a":1} {"b":2}`),
		"garbage":  []byte(`{"a":1}x`),
		"binary":   {0x00, 0x01, 0x02},
	}

	for name, in := range tt {
		in := in
		t.Run(name, func(t *testing.T) {
			v, err := DecodePayload(in)
			assert.Nil(t, v)
			assert.True(t, errors.Is(err, ErrPayloadDecodeFailure), "%v", err)

			var perr *PayloadError
			assert.True(t, errors.As(err, &perr))
		})
	}
}
