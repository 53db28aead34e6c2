package rpcproto_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/localcode/indexer/internal/rpcproto"
)

func TestWriteReadMessage_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload, err := rpcproto.EncodePayload(map[string]string{"project": "/repo"})
	require.NoError(t, err)

	w := rpcproto.NewWriter(&buf)
	require.NoError(t, w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindRequest, ID: 1, Method: "query", Payload: payload}))

	r := rpcproto.NewReader(&buf)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, rpcproto.KindRequest, got.Kind)
	require.Equal(t, uint64(1), got.ID)
	require.Equal(t, "query", got.Method)

	var decoded map[string]string
	require.NoError(t, rpcproto.DecodePayload(got, &decoded))
	require.Equal(t, "/repo", decoded["project"])
}

func TestReadMessage_MultipleFramesInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := rpcproto.NewWriter(&buf)

	require.NoError(t, w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindNotification, ID: 1, Method: "progress"}))
	require.NoError(t, w.WriteMessage(rpcproto.Message{Kind: rpcproto.KindResponse, ID: 1, Method: "query"}))

	r := rpcproto.NewReader(&buf)

	first, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, rpcproto.KindNotification, first.Kind)

	second, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, rpcproto.KindResponse, second.Kind)
}

func TestReadMessage_EOFOnCleanClose(t *testing.T) {
	var buf bytes.Buffer

	r := rpcproto.NewReader(&buf)
	_, err := r.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}
