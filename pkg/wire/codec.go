// Package wire implements newline-delimited JSON-RPC 2.0 framing. No other
// package of the gateway uses it: the inbound endpoint runs on mcp-go's
// stdio server and downstream providers are reached through mcp-go
// clients. One frame per line; requests carry an id,
// notifications omit it, responses echo it. Matching is solely by id so
// responses may interleave freely relative to submission order.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// DefaultMaxFrameSize is the default cap on a single frame, per §4.1.
const DefaultMaxFrameSize = 16 * 1024 * 1024 // 16 MiB

// Frame is a single JSON-RPC 2.0 message: a request, a notification, or a
// response. ID is nil for notifications.
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// FrameError is the JSON-RPC "error" member.
type FrameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// IsNotification reports whether the frame has no id (and is therefore
// not expecting a response).
func (f *Frame) IsNotification() bool { return f.ID == nil }

// IsResponse reports whether the frame carries a result or an error,
// i.e. it's a reply rather than an inbound request/notification.
func (f *Frame) IsResponse() bool { return f.Result != nil || f.Error != nil }

// Reader reads frames from an underlying byte stream, buffering
// incomplete trailing data across reads and rejecting oversize frames.
type Reader struct {
	scanner     *bufio.Scanner
	maxFrameLen int
}

// NewReader constructs a Reader with the given max frame size in bytes.
// A maxFrameLen of 0 uses DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameLen int) *Reader {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameSize
	}
	scanner := bufio.NewScanner(r)
	// Allow a single token (line) up to maxFrameLen+1 so we can detect and
	// reject an oversize frame instead of silently truncating it.
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLen+1)
	return &Reader{scanner: scanner, maxFrameLen: maxFrameLen}
}

// ReadFrame reads and parses the next newline-terminated frame. It
// returns io.EOF when the stream ends cleanly between frames.
func (r *Reader) ReadFrame() (*Frame, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			if isTooLong(err) {
				return nil, gwerrors.New(gwerrors.KindParseError, "frame exceeds %d byte cap", r.maxFrameLen)
			}
			return nil, fmt.Errorf("reading frame: %w", err)
		}
		return nil, io.EOF
	}

	line := r.scanner.Bytes()
	if len(line) > r.maxFrameLen {
		return nil, gwerrors.New(gwerrors.KindParseError, "frame exceeds %d byte cap", r.maxFrameLen)
	}
	if len(bufferTrim(line)) == 0 {
		// Blank lines between frames are tolerated, not an error.
		return r.ReadFrame()
	}

	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindParseError, err, "malformed frame")
	}
	return &f, nil
}

func bufferTrim(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' }

func isTooLong(err error) bool {
	return err == bufio.ErrTooLong
}

// Writer emits frames atomically: a frame is either fully written or the
// write fails, so a peer never observes a partial line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w for atomic, one-frame-per-line writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame marshals and writes f followed by a newline, holding an
// internal lock so concurrent writers from different goroutines never
// interleave their bytes.
func (w *Writer) WriteFrame(f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, err, "marshal frame")
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, err, "write frame")
	}
	return nil
}

// NewRequest builds a request frame with the given id, method and params.
func NewRequest(id any, method string, params json.RawMessage) *Frame {
	return &Frame{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// NewNotification builds a notification frame (no id).
func NewNotification(method string, params json.RawMessage) *Frame {
	return &Frame{JSONRPC: "2.0", Method: method, Params: params}
}

// NewResult builds a success response frame echoing id.
func NewResult(id any, result json.RawMessage) *Frame {
	return &Frame{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error response frame echoing id.
func NewError(id any, code int, message string, data any) *Frame {
	return &Frame{JSONRPC: "2.0", ID: id, Error: &FrameError{Code: code, Message: message, Data: data}}
}
