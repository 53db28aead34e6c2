// Package rpcproto implements the wire framing between [internal/rpcserver]
// and [internal/client]: length-prefixed JSON messages over a single Unix
// socket connection, supporting request/response calls interleaved with
// daemon-to-client progress notifications on the same connection (spec
// §4.10). A full RPC framework (gRPC, as seen in cuemby-warren) is not a
// fit here - this is a single local Unix-socket connection per client,
// not a multi-service network protocol, so the simplest framing that
// supports bidirectional streaming is the right one (see DESIGN.md).
package rpcproto

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MessageKind distinguishes a request/response envelope from an
// asynchronous progress notification on the same connection.
type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindResponse     MessageKind = "response"
	KindNotification MessageKind = "notification"
)

// Message is one length-prefixed frame. Payload carries the method-specific
// request/response body as raw JSON, decoded by the caller once Method/Kind
// indicate its shape.
type Message struct {
	Kind    MessageKind     `json:"kind"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the uniform RPC error shape (spec §7): a kind name
// (matching [internal/xerrors.Kind]) plus a human-readable message.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const maxFrameSize = 64 << 20 // 64 MiB; generous enough for any query/progress payload, a hard backstop against a corrupt length prefix.

// Method names are the RPC surface's dispatch keys (spec §4.9's method
// list), shared between [internal/rpcserver]'s dispatcher and
// [internal/client]'s call sites so neither package needs to depend on
// the other just to agree on spelling.
const (
	MethodQuery         = "query"
	MethodQueryFTS      = "query_fts"
	MethodQueryHybrid   = "query_hybrid"
	MethodQueryTemporal = "query_temporal"
	MethodIndex         = "index"
	MethodClean         = "clean"
	MethodCleanData     = "clean_data"
	MethodWatchStart    = "watch_start"
	MethodWatchStop     = "watch_stop"
	MethodWatchStatus   = "watch_status"
	MethodStatus        = "status"
	MethodClearCache    = "clear_cache"
	MethodShutdown      = "shutdown"
)

// Writer writes framed messages to an underlying connection. Safe for use
// by a single goroutine at a time; callers serialize writes themselves
// (rpcserver does this per-connection via its own mutex).
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteMessage encodes msg as JSON and writes it prefixed by a 4-byte
// big-endian length.
func (w *Writer) WriteMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rpcproto: encode message: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))

	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("rpcproto: write length prefix: %w", err)
	}

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("rpcproto: write payload: %w", err)
	}

	return nil
}

// Reader reads framed messages from an underlying connection.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

// ReadMessage blocks until a full frame is available, decodes it, and
// returns it. Returns io.EOF when the connection closes cleanly between
// frames.
func (r *Reader) ReadMessage() (Message, error) {
	var header [4]byte

	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return Message{}, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return Message{}, fmt.Errorf("rpcproto: frame size %d exceeds max %d", size, maxFrameSize)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Message{}, fmt.Errorf("rpcproto: read payload: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return Message{}, fmt.Errorf("rpcproto: decode message: %w", err)
	}

	return msg, nil
}

// EncodePayload marshals v for use as a Message.Payload.
func EncodePayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpcproto: encode payload: %w", err)
	}

	return data, nil
}

// DecodePayload unmarshals msg.Payload into v.
func DecodePayload(msg Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("rpcproto: decode payload for method %q: %w", msg.Method, err)
	}

	return nil
}
