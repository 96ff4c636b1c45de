// Package sshsession provides an authenticated, stateful SSH connection to
// one remote host, multiplexed by channel: command execution with captured
// exit status, a file-existence probe, and direct-streamlocal channels for
// the forwarder package to tunnel a remote UNIX socket.
package sshsession

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/vitalratel/peleka/pkg/log"
)

// DefaultCommandTimeout is the per-command timeout applied when Config.
// CommandTimeout is zero.
const DefaultCommandTimeout = 5 * time.Minute

// ErrChannelClosed is returned by RunCommand when the remote channel closes
// without ever reporting an exit status. Callers must never confuse this
// with a successful exit(0).
var ErrChannelClosed = errors.New("sshsession: channel closed without exit status")

// TimeoutError is returned by RunCommand when a command exceeds its
// deadline. The tunnel itself is not torn down by a command timeout.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sshsession: command timed out after %s", e.Elapsed)
}

// Config configures how a Session authenticates and verifies the host key.
type Config struct {
	Host    string
	Port    int // defaults to 22
	User    string

	// PrivateKeyPath, if set, is the only key offered; the agent and the
	// default key files are then not tried.
	PrivateKeyPath string

	// KnownHostsPath overrides the default (~/.ssh/known_hosts).
	KnownHostsPath string

	// TrustFirstConnection enables TOFU: an unknown host key is learned and
	// persisted rather than rejected. A key that differs from one already
	// recorded is always refused, regardless of this setting.
	TrustFirstConnection bool

	CommandTimeout time.Duration
}

// Result is the outcome of a command run over the session.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the command exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Session is a single authenticated connection to one host.
type Session struct {
	client  *ssh.Client
	cfg     Config

	mu         sync.Mutex
	forwarders []stopper
}

// stopper is satisfied by *forwarder.Forwarder without sshsession needing to
// import the forwarder package (which itself depends on Session).
type stopper interface {
	Stop(ctx context.Context) error
}

// Dial authenticates to the configured host and returns a ready Session.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	authMethods, err := resolveAuth(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         15 * time.Second,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sshsession: dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sshsession: handshake with %s: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	return &Session{client: client, cfg: cfg}, nil
}

// resolveAuth uses the first available source in priority order: the
// explicit key, else the agent, else every default key file found.
func resolveAuth(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		signer, err := loadSigner(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("sshsession: loading %s: %w", cfg.PrivateKeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
		return methods, nil
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentClient := agent.NewClient(conn)
			signers, err := agentClient.Signers()
			if err == nil && len(signers) > 0 {
				methods = append(methods, ssh.PublicKeysCallback(agentClient.Signers))
				return methods, nil
			}
			_ = conn.Close()
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("sshsession: resolving home directory: %w", err)
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		signer, err := loadSigner(path)
		if err != nil {
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, errors.New("sshsession: no usable authentication method (no key, no agent, no default key files)")
	}
	return methods, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

// hostKeyCallback builds the known-hosts verification callback with TOFU.
func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("sshsession: resolving home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, cerr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600); cerr == nil {
			_ = f.Close()
		}
	}

	base, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("sshsession: loading known_hosts %s: %w", path, err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := base(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			// A recorded key exists and differs from the presented one:
			// refuse unconditionally, TOFU or not.
			return fmt.Errorf("sshsession: host key for %s changed, refusing connection: %w", hostname, err)
		}

		if !cfg.TrustFirstConnection {
			return fmt.Errorf("sshsession: unknown host key for %s and trust-on-first-use disabled: %w", hostname, err)
		}

		log.Logger.Warn().Str("host", hostname).Msg("trusting host key on first connection")
		return appendKnownHost(path, hostname, key)
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("sshsession: persisting known host %s: %w", hostname, err)
	}
	defer f.Close()

	line := knownhosts.Line([]string{hostname}, key)
	_, err = fmt.Fprintln(f, line)
	return err
}

// RunCommand executes cmd on the remote host and captures its outcome. A
// command that exceeds its timeout returns *TimeoutError without tearing
// down the tunnel; the caller must not assume the remote process has
// stopped running.
func (s *Session) RunCommand(ctx context.Context, cmd string) (Result, error) {
	timeout := s.cfg.CommandTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	session, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("sshsession: opening session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case runErr := <-done:
		return classifyResult(runErr, stdout.Bytes(), stderr.Bytes())
	case <-time.After(timeout):
		return Result{}, &TimeoutError{Elapsed: time.Since(start)}
	case <-ctx.Done():
		return Result{}, &TimeoutError{Elapsed: time.Since(start)}
	}
}

func classifyResult(runErr error, stdout, stderr []byte) (Result, error) {
	if runErr == nil {
		return Result{ExitCode: 0, Stdout: stdout, Stderr: stderr}, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		return Result{ExitCode: exitErr.ExitStatus(), Stdout: stdout, Stderr: stderr}, nil
	}

	var exitMissing *ssh.ExitMissingError
	if errors.As(runErr, &exitMissing) {
		return Result{}, ErrChannelClosed
	}

	return Result{}, fmt.Errorf("sshsession: running command: %w", runErr)
}

// FileExists probes for a remote path via `test -e`.
func (s *Session) FileExists(ctx context.Context, path string) (bool, error) {
	res, err := s.RunCommand(ctx, fmt.Sprintf("test -e %s", shellQuote(path)))
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

func shellQuote(s string) string {
	return "'" + replaceAll(s, "'", `'\''`) + "'"
}

func replaceAll(s, old, new string) string {
	var b bytes.Buffer
	for {
		i := indexOf(s, old)
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[i+len(old):]
	}
	return b.String()
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// directStreamlocalPayload is the wire payload for an
// "direct-streamlocal@openssh.com" channel open request (RFC 4254-style,
// OpenSSH extension).
type directStreamlocalPayload struct {
	SocketPath string
	Reserved1  string
	Reserved2  uint32
}

// OpenStreamlocal opens a "direct-streamlocal@openssh.com" channel to the
// named UNIX socket on the remote host. Used by the forwarder package; not
// intended for direct use by orchestration code.
func (s *Session) OpenStreamlocal(ctx context.Context, remotePath string) (ssh.Channel, <-chan *ssh.Request, error) {
	payload := ssh.Marshal(directStreamlocalPayload{SocketPath: remotePath})
	channel, reqs, err := s.client.OpenChannel("direct-streamlocal@openssh.com", payload)
	if err != nil {
		return nil, nil, fmt.Errorf("sshsession: opening direct-streamlocal channel to %s: %w", remotePath, err)
	}
	return channel, reqs, nil
}

// RegisterForwarder adds f to the session's tracked forwarder list. Adding
// and draining the list is guarded by s.mu so concurrent forwarders never
// race each other during Disconnect.
func (s *Session) RegisterForwarder(f stopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwarders = append(s.forwarders, f)
}

// Disconnect stops all local forwarders before sending the SSH-layer
// disconnect.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	forwarders := s.forwarders
	s.forwarders = nil
	s.mu.Unlock()

	for _, f := range forwarders {
		if err := f.Stop(ctx); err != nil {
			log.Logger.Warn().Err(err).Msg("forwarder did not stop cleanly")
		}
	}

	return s.client.Close()
}
