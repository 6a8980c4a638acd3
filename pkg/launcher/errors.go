package launcher

import (
	"errors"
	"fmt"
)

// ProcessConfigurationIncompatibleError reports that a re-entrant launch
// resolved a configuration that disagrees with the one recorded for the
// enclosing process tree. It carries both configurations so the caller can
// show exactly what drifted.
type ProcessConfigurationIncompatibleError struct {
	Recorded ProcessConfigurationSnapshot
	Resolved ProcessConfigurationSnapshot
}

func (e *ProcessConfigurationIncompatibleError) Error() string {
	return fmt.Sprintf("configuration for package %s drifted: recorded %s, resolved %s",
		e.Recorded.PackageName, e.Recorded, e.Resolved)
}

// IsIncompatible reports whether err is a
// ProcessConfigurationIncompatibleError.
func IsIncompatible(err error) bool {
	var ierr *ProcessConfigurationIncompatibleError
	return errors.As(err, &ierr)
}
