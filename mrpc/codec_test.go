package mrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	m := message{
		kind:     kindSync,
		token:    "abc123",
		function: "add",
		args:     []interface{}{float64(1), "two", true, nil},
	}
	raw, err := encodeMessage(m)
	require.NoError(t, err)

	got, err := decodeMessage(raw)
	require.NoError(t, err)
	require.Equal(t, m.kind, got.kind)
	require.Equal(t, m.token, got.token)
	require.Equal(t, m.function, got.function)
	require.Equal(t, m.args, got.args)
}

func TestEncodeDecodeTableArgsRoundTrip(t *testing.T) {
	m := message{
		kind:     kindAsync,
		function: "bulkUpdate",
		args: []interface{}{
			[]interface{}{float64(1), "two", true},
			map[string]interface{}{"x": float64(7), "label": "widget"},
		},
	}
	raw, err := encodeMessage(m)
	require.NoError(t, err)

	got, err := decodeMessage(raw)
	require.NoError(t, err)
	require.Equal(t, m.args, got.args)
}

func TestDecodeMessageMalformed(t *testing.T) {
	_, err := decodeMessage([]byte{byte(kindCall)})
	require.Error(t, err)
}

func TestEncodeMessageRejectsUnsupportedType(t *testing.T) {
	_, err := encodeMessage(message{kind: kindAsync, function: "f", args: []interface{}{struct{}{}}})
	require.Error(t, err)
}
