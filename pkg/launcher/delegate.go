package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
)

// LaunchSpec is the fully prepared launch tuple handed to a spawning
// delegate.
type LaunchSpec struct {
	Executable string
	Args       []string
	Env        []string
	Cwd        string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Delegate customizes how the controller starts the resolved program.
// Embed BaseDelegate to pick up defaults and override selectively.
type Delegate interface {
	// ShouldSpawn selects between spawning a subprocess (true) and
	// replacing the current process image (false).
	ShouldSpawn() bool

	// ProcessFiles returns the streams wired to a spawned child.
	ProcessFiles() (stdin io.Reader, stdout, stderr io.Writer)

	// PrepareEnvironment may mutate env and args in place before the
	// launch tuple is finalized.
	PrepareEnvironment(executable string, env map[string]string, args []string, cwd string) error

	// PreStart is the last chance to rewrite the launch tuple, for
	// example stripping control arguments before the child sees them.
	PreStart(executable string, env map[string]string, args []string, cwd string) (string, map[string]string, []string, string, error)

	// Communicate bridges the child's I/O after it has started and
	// returns its exit code.
	Communicate(cmd *exec.Cmd) (int, error)
}

// Spawner is an optional delegate extension that takes over process
// creation entirely. Test doubles implement it to intercept launches
// without starting real processes.
type Spawner interface {
	Spawn(ctx context.Context, spec *LaunchSpec) (int, error)
}

// BaseDelegate provides the default launch behavior: spawn a child wired
// to this process's standard streams and wait for it.
type BaseDelegate struct{}

// ShouldSpawn implements Delegate.
func (BaseDelegate) ShouldSpawn() bool { return true }

// ProcessFiles implements Delegate.
func (BaseDelegate) ProcessFiles() (io.Reader, io.Writer, io.Writer) {
	return os.Stdin, os.Stdout, os.Stderr
}

// PrepareEnvironment implements Delegate.
func (BaseDelegate) PrepareEnvironment(string, map[string]string, []string, string) error {
	return nil
}

// PreStart implements Delegate. It strips the launcher's own control
// variables from the child environment. The snapshot variable stays so
// re-entrant children can detect drift.
func (BaseDelegate) PreStart(executable string, env map[string]string, args []string, cwd string) (string, map[string]string, []string, string, error) {
	for key := range env {
		if key != SnapshotsEnvVar && strings.HasPrefix(key, "STAGEHAND_") {
			delete(env, key)
		}
	}
	return executable, env, args, cwd, nil
}

// Communicate implements Delegate by waiting for the child to exit.
func (BaseDelegate) Communicate(cmd *exec.Cmd) (int, error) {
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return cmd.ProcessState.ExitCode(), nil
}
