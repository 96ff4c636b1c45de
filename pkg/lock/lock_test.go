package lock

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalratel/peleka/pkg/sshsession"
)

// fakeSession is an in-memory stand-in for *sshsession.Session backed by
// a map keyed on path, so Acquire/Release can be exercised without a
// real remote host.
type fakeSession struct {
	files map[string]string
	calls []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{files: map[string]string{}}
}

func (f *fakeSession) RunCommand(_ context.Context, cmd string) (sshsession.Result, error) {
	f.calls = append(f.calls, cmd)

	switch {
	case strings.HasPrefix(cmd, "cat "):
		path := extractQuoted(cmd)
		content, ok := f.files[path]
		if !ok {
			return sshsession.Result{ExitCode: 1}, nil
		}
		return sshsession.Result{ExitCode: 0, Stdout: []byte(content)}, nil

	case strings.HasPrefix(cmd, "rm -f "):
		path := extractQuoted(cmd)
		delete(f.files, path)
		return sshsession.Result{ExitCode: 0}, nil

	case strings.Contains(cmd, " && mv "):
		parts := strings.Split(cmd, " && mv ")
		writePart := parts[0]
		mvArgs := strings.Fields(parts[1])
		tmpPath := strings.Trim(mvArgs[0], "'")
		finalPath := strings.Trim(mvArgs[1], "'")

		echoParts := strings.SplitN(writePart, " > ", 2)
		payload := strings.TrimPrefix(echoParts[0], "echo ")
		payload = strings.Trim(payload, "'")

		f.files[tmpPath] = payload
		f.files[finalPath] = f.files[tmpPath]
		delete(f.files, tmpPath)
		return sshsession.Result{ExitCode: 0}, nil

	default:
		return sshsession.Result{}, fmt.Errorf("fakeSession: unhandled command %q", cmd)
	}
}

func extractQuoted(cmd string) string {
	start := strings.Index(cmd, "'")
	end := strings.LastIndex(cmd, "'")
	if start < 0 || end <= start {
		return ""
	}
	return cmd[start+1 : end]
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	session := newFakeSession()

	l, err := Acquire(context.Background(), session, "peleka", "checkout", false)
	require.NoError(t, err)
	assert.Equal(t, "checkout", l.Info().Service)
	assert.NotEmpty(t, l.Info().Holder)

	require.NoError(t, l.Release(context.Background()))
	assert.Empty(t, session.files)
}

func TestAcquireFailsWhenHeldByAnotherSession(t *testing.T) {
	session := newFakeSession()

	first, err := Acquire(context.Background(), session, "peleka", "checkout", false)
	require.NoError(t, err)

	_, err = Acquire(context.Background(), session, "peleka", "checkout", false)
	var heldErr *HeldError
	require.ErrorAs(t, err, &heldErr)
	assert.Equal(t, first.Info().Holder, heldErr.Info.Holder)
}

func TestAcquireForceTakesOver(t *testing.T) {
	session := newFakeSession()

	_, err := Acquire(context.Background(), session, "peleka", "checkout", false)
	require.NoError(t, err)

	second, err := Acquire(context.Background(), session, "peleka", "checkout", true)
	require.NoError(t, err)
	assert.Equal(t, "checkout", second.Info().Service)
}

func TestAcquireStaleLockIsTakenOver(t *testing.T) {
	session := newFakeSession()
	path := Path("peleka", "checkout")
	session.files[path] = `{"holder":"old-host","pid":1,"started_at":"2020-01-01T00:00:00Z","service":"checkout"}`

	l, err := Acquire(context.Background(), session, "peleka", "checkout", false)
	require.NoError(t, err)
	assert.NotEqual(t, "old-host", l.Info().Holder)
}

func TestAcquireCorruptLockIsTreatedAsStale(t *testing.T) {
	session := newFakeSession()
	path := Path("peleka", "checkout")
	session.files[path] = "not json"

	_, err := Acquire(context.Background(), session, "peleka", "checkout", false)
	require.NoError(t, err)
}

func TestWithLockReleasesOnBodyError(t *testing.T) {
	session := newFakeSession()
	bodyErr := fmt.Errorf("boom")

	err := WithLock(context.Background(), session, "peleka", "checkout", false, func(l *Lock) error {
		return bodyErr
	})

	assert.ErrorIs(t, err, bodyErr)
	assert.Empty(t, session.files)
}

func TestSanitizeHostnameStripsQuotesAndControlBytes(t *testing.T) {
	dirty := "host\x00name'with\x7fcontrol"
	clean := sanitizeHostname(dirty)
	assert.NotContains(t, clean, "\x00")
	assert.NotContains(t, clean, "'")
	assert.NotContains(t, clean, "\x7f")
}

func TestIsStale(t *testing.T) {
	fresh := Info{StartedAt: time.Now().UTC()}
	old := Info{StartedAt: time.Now().UTC().Add(-2 * time.Hour)}
	assert.False(t, isStale(fresh))
	assert.True(t, isStale(old))
}
