package transfer

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/staticd/internal/http1"
	"example.com/staticd/internal/testutil"
)

func writeTestFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func responseHeaders(n int64) http1.Headers {
	return http1.Headers{}.
		Add("Content-Type", "application/octet-stream").
		Add("Content-Length", strconv.FormatInt(n, 10))
}

// connPair returns the server side wrapped as an http1.Conn and the raw
// client side of a loopback TCP connection, optionally with TLS on top.
func connPair(t *testing.T, useTLS bool) (*http1.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var serverCfg, clientCfg *tls.Config
	if useTLS {
		serverCfg, clientCfg = testutil.TLSConfigs(t)
	}

	accepted := make(chan net.Conn, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		if useTLS {
			tc := tls.Server(nc, serverCfg)
			if err := tc.Handshake(); err != nil {
				nc.Close()
				close(accepted)
				return
			}
			nc = tc
		}
		accepted <- nc
	}()

	var client net.Conn
	if useTLS {
		client, err = tls.Dial("tcp", ln.Addr().String(), clientCfg)
	} else {
		client, err = net.Dial("tcp", ln.Addr().String())
	}
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	nc, ok := <-accepted
	require.True(t, ok, "accept failed")
	c := http1.NewConn(nc, 8192)
	t.Cleanup(func() { c.Close() })
	return c, client
}

func TestSend_Plaintext(t *testing.T) {
	c, client := connPair(t, false)
	require.False(t, c.Encrypted)
	path, data := writeTestFile(t, 12345)

	progress := make(chan http1.Progress, 64)
	c.Progress = progress
	c.WriteTimeout = 5 * time.Second

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	e := &Engine{RegionSize: 4096}
	done := make(chan Result, 1)
	go func() { done <- e.Send(c, f, int64(len(data)), responseHeaders(int64(len(data))), true) }()

	br := bufio.NewReader(client)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int64(12345), resp.ContentLength)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, body))

	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, int64(12345), res.Sent)
	assert.Equal(t, int64(12345), res.Total)

	close(progress)
	var last http1.Progress
	var events int
	for p := range progress {
		assert.GreaterOrEqual(t, p.Sent, last.Sent)
		assert.Equal(t, int64(12345), p.Total)
		last = p
		events++
	}
	assert.Equal(t, 4, events, "12345 bytes in 4096-byte regions")
	assert.Equal(t, int64(12345), last.Sent)

	// Keep-alive: the connection is still usable.
	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(c.NetConn(), buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestSend_PlaintextCloseAfterCompletion(t *testing.T) {
	c, client := connPair(t, false)
	path, data := writeTestFile(t, 1000)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	res := make(chan Result, 1)
	go func() { res <- NewEngine().Send(c, f, int64(len(data)), responseHeaders(int64(len(data))), false) }()

	all, err := io.ReadAll(client)
	require.NoError(t, err, "server must close the connection")
	assert.True(t, bytes.HasSuffix(all, data))
	assert.Equal(t, Completed, (<-res).State)
}

func TestSend_ZeroLengthFile(t *testing.T) {
	c, client := connPair(t, false)
	path, _ := writeTestFile(t, 0)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	done := make(chan Result, 1)
	go func() { done <- NewEngine().Send(c, f, 0, responseHeaders(0), true) }()

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.ContentLength)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)

	res := <-done
	assert.Equal(t, Completed, res.State)
	assert.Zero(t, res.Sent)
}

func TestSend_Encrypted(t *testing.T) {
	c, client := connPair(t, true)
	require.True(t, c.Encrypted)
	path, data := writeTestFile(t, 20000)

	progress := make(chan http1.Progress, 64)
	c.Progress = progress

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	done := make(chan Result, 1)
	go func() { done <- NewEngine().Send(c, f, int64(len(data)), responseHeaders(int64(len(data))), false) }()

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, body))

	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, int64(20000), res.Sent)

	close(progress)
	var sents []int64
	for p := range progress {
		sents = append(sents, p.Sent)
	}
	assert.Equal(t, []int64{8192, 16384, 20000}, sents)
}

func TestSend_ShortFileFails(t *testing.T) {
	for _, useTLS := range []bool{false, true} {
		t.Run("tls="+strconv.FormatBool(useTLS), func(t *testing.T) {
			c, client := connPair(t, useTLS)
			path, data := writeTestFile(t, 100)

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			done := make(chan Result, 1)
			go func() { done <- NewEngine().Send(c, f, 500, responseHeaders(500), true) }()

			all, _ := io.ReadAll(client)
			assert.LessOrEqual(t, len(all), len(data)+200)

			res := <-done
			assert.Equal(t, Failed, res.State)
			assert.ErrorIs(t, res.Err, io.ErrUnexpectedEOF)
		})
	}
}

func TestSend_PeerGone(t *testing.T) {
	c, client := connPair(t, false)
	path, data := writeTestFile(t, 32<<20)
	client.Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	c.WriteTimeout = 2 * time.Second
	res := NewEngine().Send(c, f, int64(len(data)), responseHeaders(int64(len(data))), true)
	assert.Equal(t, Failed, res.State)
	assert.Error(t, res.Err)
	assert.Less(t, res.Sent, int64(len(data)))
}

func TestProgressNeverBlocks(t *testing.T) {
	c, client := connPair(t, false)
	path, data := writeTestFile(t, 10000)

	c.Progress = make(chan http1.Progress) // unbuffered, nobody reading

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	done := make(chan Result, 1)
	go func() { done <- (&Engine{RegionSize: 1000}).Send(c, f, int64(len(data)), responseHeaders(int64(len(data))), false) }()

	_, err = io.ReadAll(client)
	require.NoError(t, err)
	select {
	case res := <-done:
		assert.Equal(t, Completed, res.State)
	case <-time.After(5 * time.Second):
		t.Fatal("transfer blocked on progress channel")
	}
}

func TestChunkedFile(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 2000)
	in := newChunkedFile(bytes.NewReader(data), int64(len(data)), 0)

	var sizes []int
	var got []byte
	for !in.isEndOfInput() {
		chunk, err := in.readChunk()
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
		got = append(got, chunk...)
	}
	_, err := in.readChunk()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []int{8192, 8192, 3616}, sizes)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), in.progress())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "NotStarted", NotStarted.String())
	assert.Equal(t, "InProgress", InProgress.String())
	assert.Equal(t, "Completed", Completed.String())
	assert.Equal(t, "Failed", Failed.String())
	assert.Equal(t, "Unknown", State(42).String())
}
