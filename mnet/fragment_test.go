package mnet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPayloadFitsWhole(t *testing.T) {
	chunks := splitPayload([]byte("short"), 100)
	require.Len(t, chunks, 1)
}

func TestSplitPayloadFragments(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 25)
	chunks := splitPayload(payload, 10)
	require.Len(t, chunks, 3)
	var rebuilt []byte
	for _, c := range chunks {
		rebuilt = append(rebuilt, c...)
	}
	require.Equal(t, payload, rebuilt)
}

func TestSplitPayloadExactMultiple(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 20)
	chunks := splitPayload(payload, 10)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 10)
	require.Len(t, chunks[1], 10)
}
