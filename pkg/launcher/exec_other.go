//go:build !unix

package launcher

import "fmt"

// execReplace is unavailable without an exec syscall; delegates on these
// platforms must spawn instead.
func (c *Controller) execReplace(spec *LaunchSpec) error {
	return fmt.Errorf("process image replacement is not supported on this platform")
}
