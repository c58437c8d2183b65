package daemon

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neur0map/yinx/internal/types"
)

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	sent := Request{
		Kind: KindCapture,
		Capture: &CaptureRequest{
			SessionID: "sess-1",
			Timestamp: 1700000000,
			Command:   "nmap -sV 10.0.0.5",
			Output:    "22/tcp open ssh",
			ExitCode:  0,
			CWD:       "/root",
		},
	}
	require.NoError(t, WriteFrame(&buf, &sent))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, KindCapture, got.Kind)
	require.NotNil(t, got.Capture)
	assert.Equal(t, sent.Capture.Command, got.Capture.Command)
	assert.Equal(t, sent.Capture.SessionID, got.Capture.SessionID)
}

func TestWriteFrameTooBig(t *testing.T) {
	var buf bytes.Buffer
	huge := Request{
		Kind:    KindCapture,
		Capture: &CaptureRequest{Output: string(make([]byte, MaxMessageSize+1))},
	}
	err := WriteFrame(&buf, &huge)
	require.Error(t, err)
	assert.Equal(t, types.IPC_FRAME_TOO_BIG, types.CodeOf(err))
	assert.Zero(t, buf.Len())
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxMessageSize+1)
	buf.Write(prefix[:])

	var got Request
	err := ReadFrame(&buf, &got)
	require.Error(t, err)
	assert.Equal(t, types.IPC_FRAME_TOO_BIG, types.CodeOf(err))
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 100)
	buf.Write(prefix[:])
	buf.WriteString("short")

	var got Request
	err := ReadFrame(&buf, &got)
	require.Error(t, err)
	assert.Equal(t, types.IPC_READ_FAILED, types.CodeOf(err))
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yinx.sock")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestListenerCloseRemovesSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yinx.sock")
	ln, err := Listen(path)
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestClientSendRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yinx.sock")
	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			return
		}
		WriteFrame(conn, OKResponse(map[string]string{"kind": string(req.Kind)}))
	}()

	client := NewClient(path)
	resp, err := client.Send(&Request{Kind: KindStatus})
	require.NoError(t, err)
	assert.True(t, resp.OK)

	var data map[string]string
	require.NoError(t, resp.Decode(&data))
	assert.Equal(t, "status", data["kind"])
}

func TestClientSendNoDaemon(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := client.Send(&Request{Kind: KindStatus})
	require.Error(t, err)
	assert.Equal(t, types.DAEMON_NOT_RUNNING, types.CodeOf(err))
}

func TestErrResponsePreservesCode(t *testing.T) {
	resp := ErrResponse(types.NewError(types.PIPELINE_BACKPRESSURE, "buffer full"))
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.PIPELINE_BACKPRESSURE), resp.Error.Kind)

	err := resp.Err()
	require.Error(t, err)
	assert.Equal(t, types.PIPELINE_BACKPRESSURE, types.CodeOf(err))
}

func TestErrResponseUnknownError(t *testing.T) {
	resp := ErrResponse(net.ErrClosed)
	require.False(t, resp.OK)
	assert.Equal(t, "INTERNAL", resp.Error.Kind)
}
