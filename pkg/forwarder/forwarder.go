// Package forwarder exposes a remote UNIX-domain socket as a local one: it
// listens on a unique local UNIX socket and tunnels every accepted
// connection through an SSH session's direct-streamlocal channel to a named
// socket on the remote host.
package forwarder

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/vitalratel/peleka/pkg/log"
)

// pollInterval bounds how long Accept may block before the shutdown flag is
// re-checked; the accept loop must wake at least this often.
const pollInterval = 100 * time.Millisecond

// shutdownWait is the upper bound Stop waits for the accept loop to notice
// the shutdown flag and exit before unlinking the socket file unconditionally.
const shutdownWait = 2 * time.Second

// opener is satisfied by *sshsession.Session. Declared locally so forwarder
// does not import sshsession, avoiding an import cycle (sshsession tracks
// forwarders via the Stop-only stopper interface).
type opener interface {
	OpenStreamlocal(ctx context.Context, remotePath string) (ssh.Channel, <-chan *ssh.Request, error)
}

// Forwarder tunnels one remote UNIX socket to a local one for the lifetime
// of the owning SSH session.
type Forwarder struct {
	session    opener
	remotePath string
	localPath  string

	listener *net.UnixListener
	closing  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// Forward creates a unique local UNIX socket and starts tunneling
// connections accepted on it to remotePath on the far end of session. The
// returned path is unique per call so multiple forwards can coexist.
func Forward(session opener, remotePath string) (*Forwarder, error) {
	localPath := filepath.Join(os.TempDir(), fmt.Sprintf("peleka-%s.sock", uuid.NewString()))

	addr, err := net.ResolveUnixAddr("unix", localPath)
	if err != nil {
		return nil, fmt.Errorf("forwarder: resolving local socket: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("forwarder: listening on %s: %w", localPath, err)
	}

	f := &Forwarder{
		session:    session,
		remotePath: remotePath,
		localPath:  localPath,
		listener:   listener,
		done:       make(chan struct{}),
	}

	go f.acceptLoop()
	return f, nil
}

func (f *Forwarder) acceptLoop() {
	defer close(f.done)

	for {
		if f.closing.Load() {
			return
		}

		_ = f.listener.SetDeadline(time.Now().Add(pollInterval))
		conn, err := f.listener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if f.closing.Load() {
				return
			}
			log.Logger.Warn().Err(err).Str("socket", f.localPath).Msg("forwarder accept failed")
			continue
		}

		go f.pump(conn)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (f *Forwarder) pump(local net.Conn) {
	defer local.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	remote, reqs, err := f.session.OpenStreamlocal(ctx, f.remotePath)
	if err != nil {
		log.Logger.Warn().Err(err).Str("remote", f.remotePath).Msg("forwarder could not open remote channel")
		return
	}
	defer remote.Close()

	// Ignore WindowAdjusted and all other channel requests; this is a raw
	// byte pipe, not an interactive session.
	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, _ = io.Copy(remote, local)
		_ = remote.CloseWrite()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(local, remote)
		if tcpLike, ok := local.(interface{ CloseWrite() error }); ok {
			_ = tcpLike.CloseWrite()
		}
	}()

	wg.Wait()
}

// LocalPath returns the local UNIX socket path accepting connections for
// this forward.
func (f *Forwarder) LocalPath() string {
	return f.localPath
}

// Stop signals the accept loop to exit, waits up to shutdownWait for it to
// notice, and unconditionally unlinks the local socket file afterward.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.closing.Store(true)
	_ = f.listener.Close()

	select {
	case <-f.done:
	case <-time.After(shutdownWait):
	case <-ctx.Done():
	}

	f.doneOnce.Do(func() {
		_ = os.Remove(f.localPath)
	})
	return nil
}
