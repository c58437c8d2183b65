package daemon

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/neur0map/yinx/internal/retrieval"
	"github.com/neur0map/yinx/internal/types"
)

// MaxMessageSize caps one framed IPC message at 10MB in either
// direction. Captures larger than this must be rejected at the hook.
const MaxMessageSize = 10 * 1024 * 1024

// RequestKind discriminates IPC requests.
type RequestKind string

const (
	KindCapture  RequestKind = "capture"
	KindQuery    RequestKind = "query"
	KindStatus   RequestKind = "status"
	KindShutdown RequestKind = "shutdown"
)

// CaptureRequest is one executed command and its raw output, sent by
// the shell hook.
type CaptureRequest struct {
	SessionID types.ID `json:"session_id"`
	Timestamp int64    `json:"timestamp"`
	Command   string   `json:"command"`
	Output    string   `json:"output"`
	ExitCode  int      `json:"exit_code"`
	CWD       string   `json:"cwd"`
}

// QueryRequest is a search over indexed chunks.
type QueryRequest struct {
	Text    string             `json:"text"`
	Limit   int                `json:"limit,omitempty"`
	Filters *retrieval.Filters `json:"filters,omitempty"`
}

// Request is the framed IPC request envelope. Exactly one payload
// field matching Kind is set.
type Request struct {
	Kind    RequestKind     `json:"kind"`
	Capture *CaptureRequest `json:"capture,omitempty"`
	Query   *QueryRequest   `json:"query,omitempty"`
}

// ResponseError carries a structured failure back to the client.
type ResponseError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the framed IPC response envelope.
type Response struct {
	OK    bool            `json:"ok"`
	Error *ResponseError  `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OKResponse wraps data in a successful response.
func OKResponse(data any) Response {
	if data == nil {
		return Response{OK: true}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ErrResponse(types.WrapError(types.IPC_WRITE_FAILED,
			"failed to encode response payload", err))
	}
	return Response{OK: true, Data: payload}
}

// ErrResponse maps err to an error response, preserving the error code
// when err is a structured yinx error.
func ErrResponse(err error) Response {
	kind := string(types.CodeOf(err))
	if kind == "" {
		kind = "INTERNAL"
	}
	return Response{
		OK:    false,
		Error: &ResponseError{Kind: kind, Message: err.Error()},
	}
}

// Decode unmarshals the response data payload into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return types.WrapError(types.IPC_READ_FAILED,
			"failed to decode response payload", err)
	}
	return nil
}

// Err converts an error response back into a structured error.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return types.NewError(types.IPC_READ_FAILED, "error response without error body")
	}
	return types.NewError(types.ErrorCode(r.Error.Kind), r.Error.Message)
}

// WriteFrame writes v as one length-prefixed JSON frame: a 4-byte
// big-endian payload length followed by the payload bytes.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return types.WrapError(types.IPC_WRITE_FAILED, "failed to encode frame", err)
	}
	if len(payload) > MaxMessageSize {
		return types.NewError(types.IPC_FRAME_TOO_BIG,
			"frame exceeds message size limit")
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return types.WrapError(types.IPC_WRITE_FAILED, "failed to write frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return types.WrapError(types.IPC_WRITE_FAILED, "failed to write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame into v.
func ReadFrame(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return types.WrapError(types.IPC_READ_FAILED, "failed to read frame length", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxMessageSize {
		return types.NewError(types.IPC_FRAME_TOO_BIG,
			"frame exceeds message size limit")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return types.WrapError(types.IPC_READ_FAILED, "failed to read frame payload", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return types.WrapError(types.IPC_READ_FAILED, "failed to decode frame", err)
	}
	return nil
}

// Listener is the daemon's unix socket. Binding removes a stale socket
// file left by a previous run; Close removes the live one.
type Listener struct {
	path string
	ln   net.Listener
}

// Listen binds the unix socket at path.
func Listen(path string) (*Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, types.WrapError(types.IPC_BIND_FAILED,
			"failed to create socket directory", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, types.WrapError(types.IPC_BIND_FAILED,
			"failed to remove stale socket", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, types.WrapError(types.IPC_BIND_FAILED,
			"failed to bind unix socket", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, types.WrapError(types.IPC_BIND_FAILED,
			"failed to restrict socket permissions", err)
	}
	return &Listener{path: path, ln: ln}, nil
}

// Accept waits for the next client connection.
func (l *Listener) Accept() (net.Conn, error) {
	return l.ln.Accept()
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Close shuts the listener down and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = removeErr
	}
	return err
}

// Client talks to a running daemon over its unix socket. One request
// per connection, mirroring the hook's fire-and-forget usage.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: 5 * time.Second}
}

// Send dials the daemon, writes one request, and reads one response.
func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return nil, types.WrapError(types.DAEMON_NOT_RUNNING,
			"failed to connect to daemon socket", err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, req); err != nil {
		return nil, err
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitCapture sends one capture event.
func (c *Client) SubmitCapture(capture *CaptureRequest) error {
	resp, err := c.Send(&Request{Kind: KindCapture, Capture: capture})
	if err != nil {
		return err
	}
	return resp.Err()
}

// Query runs a search and returns the hydrated results.
func (c *Client) Query(query *QueryRequest) (*retrieval.Result, error) {
	resp, err := c.Send(&Request{Kind: KindQuery, Query: query})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var result retrieval.Result
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the daemon status report.
func (c *Client) Status() (*StatusReport, error) {
	resp, err := c.Send(&Request{Kind: KindStatus})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var report StatusReport
	if err := resp.Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	resp, err := c.Send(&Request{Kind: KindShutdown})
	if err != nil {
		return err
	}
	return resp.Err()
}
