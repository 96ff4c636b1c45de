// Package lock implements the remote file-based deploy lock that
// serializes concurrent deployments of the same service to the same
// host. The lock file lives on the remote host itself (not locally),
// written and read through an already-connected SSH session, so it
// serializes sessions regardless of which machine launched them.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vitalratel/peleka/pkg/sshsession"
)

// StaleAfter is how long a lock can sit unreleased before the next
// acquisition treats it as abandoned and takes over.
const StaleAfter = time.Hour

// runner is the subset of *sshsession.Session the lock needs.
type runner interface {
	RunCommand(ctx context.Context, cmd string) (sshsession.Result, error)
}

// Info is the JSON document persisted at the lock file path.
type Info struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Service   string    `json:"service"`
}

// HeldError is returned by Acquire when another session holds a live,
// non-stale lock and force was not requested.
type HeldError struct {
	Info Info
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("lock: held by %s (pid %d) since %s", e.Info.Holder, e.Info.PID, e.Info.StartedAt.Format(time.RFC3339))
}

// Lock represents an acquired deploy lock, ready to be released.
type Lock struct {
	session runner
	path    string
	info    Info
}

// Path returns the remote lock file path, e.g.
// /tmp/peleka-deploy-checkout.lock.
func Path(namespace, service string) string {
	return fmt.Sprintf("/tmp/%s-deploy-%s.lock", namespace, service)
}

// Acquire composes this session's Info and attempts to claim the
// lock file at the service's path. An existing lock is taken over
// (with the caller expected to log a warning) when force is set, when
// it is older than StaleAfter, or when its contents fail to decode as
// JSON; otherwise Acquire fails with *HeldError.
func Acquire(ctx context.Context, session runner, namespace, service string, force bool) (*Lock, error) {
	path := Path(namespace, service)

	existing, decoded, err := read(ctx, session, path)
	if err != nil {
		return nil, fmt.Errorf("lock: reading existing lock: %w", err)
	}

	if decoded && !force && !isStale(existing) {
		return nil, &HeldError{Info: existing}
	}

	info := Info{
		Holder:    sanitizeHostname(hostname()),
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
		Service:   service,
	}

	if err := write(ctx, session, path, info); err != nil {
		return nil, fmt.Errorf("lock: writing lock file: %w", err)
	}

	return &Lock{session: session, path: path, info: info}, nil
}

// Release removes the remote lock file. Failure is non-fatal to the
// caller's deployment but should be surfaced as a warning: the lock
// file is simply left behind and will be treated as stale after
// StaleAfter.
func (l *Lock) Release(ctx context.Context) error {
	res, err := l.session.RunCommand(ctx, fmt.Sprintf("rm -f %s", shellQuote(l.path)))
	if err != nil {
		return fmt.Errorf("lock: removing %s: %w", l.path, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("lock: rm -f %s exited %d: %s", l.path, res.ExitCode, string(res.Stderr))
	}
	return nil
}

// Info returns the holder metadata this lock was acquired with.
func (l *Lock) Info() Info { return l.info }

// WithLock acquires the named lock, runs fn, and releases the lock on
// every exit path — success, error, or panic — before returning. The
// release always happens before the caller's own SSH disconnect, since
// the caller controls when Disconnect runs relative to this call's
// return.
func WithLock(ctx context.Context, session runner, namespace, service string, force bool, fn func(*Lock) error) (err error) {
	l, err := Acquire(ctx, session, namespace, service, force)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := l.Release(ctx); releaseErr != nil && err == nil {
			// A release failure never masks a body failure, but is worth
			// the caller knowing about when the body itself succeeded.
			err = fmt.Errorf("lock: body succeeded but release failed: %w", releaseErr)
		}
	}()

	return fn(l)
}

func read(ctx context.Context, session runner, path string) (Info, bool, error) {
	res, err := session.RunCommand(ctx, fmt.Sprintf("cat %s 2>/dev/null", shellQuote(path)))
	if err != nil {
		return Info{}, false, err
	}
	if res.ExitCode != 0 || len(res.Stdout) == 0 {
		return Info{}, false, nil
	}

	var info Info
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		return Info{}, false, nil
	}
	return info, true, nil
}

func write(ctx context.Context, session runner, path string, info Info) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, info.PID)
	cmd := fmt.Sprintf("echo %s > %s && mv %s %s", shellQuote(string(payload)), shellQuote(tmp), shellQuote(tmp), shellQuote(path))

	res, err := session.RunCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("remote write exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

func isStale(info Info) bool {
	return time.Since(info.StartedAt) > StaleAfter
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-" + strconv.Itoa(os.Getpid())
	}
	return h
}

// sanitizeHostname strips non-printable bytes so a holder name can
// never break the single-quoted shell payload it is embedded in.
func sanitizeHostname(h string) string {
	var b strings.Builder
	for _, r := range h {
		if r >= 0x20 && r != 0x7f && r != '\'' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
