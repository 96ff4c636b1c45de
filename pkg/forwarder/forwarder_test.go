package forwarder

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"
)

// fakeChannel adapts a net.Conn half of an in-process pipe to ssh.Channel,
// standing in for a real direct-streamlocal channel in tests.
type fakeChannel struct {
	net.Conn
}

func (f fakeChannel) CloseWrite() error {
	if cw, ok := f.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (f fakeChannel) SendRequest(string, bool, []byte) (bool, error) { return false, nil }
func (f fakeChannel) Stderr() io.ReadWriter                          { return nil }

// fakeOpener hands out the client end of a single in-process pipe from
// OpenStreamlocal, with a remote "server" answering a known protocol
// request on the other end, modeling invariant I11 (forwarded socket
// readiness).
type fakeOpener struct {
	remoteEnd net.Conn
}

func newFakeOpener(serve func(net.Conn)) *fakeOpener {
	client, server := net.Pipe()
	go serve(server)
	return &fakeOpener{remoteEnd: client}
}

func (o *fakeOpener) OpenStreamlocal(ctx context.Context, remotePath string) (ssh.Channel, <-chan *ssh.Request, error) {
	return fakeChannel{o.remoteEnd}, make(chan *ssh.Request), nil
}

func TestForward_RoundTripsBytes(t *testing.T) {
	opener := newFakeOpener(func(conn net.Conn) {
		buf := make([]byte, 4)
		_, err := io.ReadFull(conn, buf)
		if err != nil {
			return
		}
		if bytes.Equal(buf, []byte("ping")) {
			_, _ = conn.Write([]byte("pong"))
		}
		_ = conn.Close()
	})

	f, err := Forward(opener, "/run/docker.sock")
	assert.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.Stop(ctx)
	}()

	conn, err := net.DialTimeout("unix", f.LocalPath(), time.Second)
	assert.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	assert.NoError(t, err)

	reply := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, reply)
	assert.NoError(t, err)
	assert.Equal(t, "pong", string(reply))
}

func TestStop_UnlinksSocketFile(t *testing.T) {
	opener := newFakeOpener(func(conn net.Conn) { _ = conn.Close() })
	f, err := Forward(opener, "/run/docker.sock")
	assert.NoError(t, err)

	path := f.LocalPath()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.Stop(ctx))

	_, statErr := net.DialTimeout("unix", path, 100*time.Millisecond)
	assert.Error(t, statErr)
}
