// Package hooks runs the three lifecycle scripts a project can drop under
// .peleka/hooks/ to integrate with its own tooling around a deployment.
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Point names one of the lifecycle points a hook script can occupy.
type Point string

const (
	PreDeploy  Point = "pre-deploy"
	OnError    Point = "on-error"
	PostDeploy Point = "post-deploy"
)

// Policy describes how a failing hook at a given point affects the
// surrounding deployment.
type Policy int

const (
	// Fatal aborts the deployment for the host the hook ran on.
	Fatal Policy = iota
	// Warning logs the failure but does not change the outcome.
	Warning
)

// PolicyFor returns the failure policy for point.
func PolicyFor(point Point) Policy {
	if point == PreDeploy {
		return Fatal
	}
	return Warning
}

// Context is the environment-variable contract passed to every hook
// invocation.
type Context struct {
	Service         string
	Image           string
	Server          string
	Runtime         string
	PreviousVersion string // empty when there is no previous deployment
}

func (c Context) env() []string {
	env := []string{
		"PELEKA_SERVICE=" + c.Service,
		"PELEKA_IMAGE=" + c.Image,
		"PELEKA_SERVER=" + c.Server,
		"PELEKA_RUNTIME=" + c.Runtime,
	}
	if c.PreviousVersion != "" {
		env = append(env, "PELEKA_PREVIOUS_VERSION="+c.PreviousVersion)
	}
	return append(os.Environ(), env...)
}

// Runner locates and executes hook scripts under one project root.
type Runner struct {
	ProjectRoot string
}

// NewRunner builds a Runner rooted at projectRoot; hook scripts are
// resolved at projectRoot/.peleka/hooks/<point>.
func NewRunner(projectRoot string) *Runner {
	return &Runner{ProjectRoot: projectRoot}
}

// scriptPath returns the path a hook at point would live at.
func (r *Runner) scriptPath(point Point) string {
	return filepath.Join(r.ProjectRoot, ".peleka", "hooks", string(point))
}

// Run executes the hook at point if a script exists there, returning nil
// without error when no script is present — hooks are opt-in. The
// caller is responsible for applying PolicyFor(point) to a non-nil
// error: pre-deploy failures should abort, the others should only warn.
func (r *Runner) Run(ctx context.Context, point Point, hctx Context) error {
	path := r.scriptPath(point)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("hooks: stat %s: %w", path, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("hooks: %s is not executable", path)
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = hctx.env()
	cmd.Dir = r.ProjectRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("hooks: %s failed: %w: %s", point, err, output)
	}
	return nil
}
