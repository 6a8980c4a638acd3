//go:build unix

package launcher

import (
	"fmt"
	"os"
	"syscall"
)

// execReplace replaces the current process image. It only returns on error.
func (c *Controller) execReplace(spec *LaunchSpec) error {
	if spec.Cwd != "" {
		if err := os.Chdir(spec.Cwd); err != nil {
			return fmt.Errorf("failed to change directory to %s: %w", spec.Cwd, err)
		}
	}

	argv := append([]string{spec.Executable}, spec.Args...)
	c.logger.Info().
		Str("executable", spec.Executable).
		Strs("args", spec.Args).
		Msg("Replacing process image")

	if err := syscall.Exec(spec.Executable, argv, spec.Env); err != nil {
		return fmt.Errorf("failed to exec %s: %w", spec.Executable, err)
	}
	return nil
}
