package launcher

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// SnapshotsEnvVar carries the serialized snapshots of the active package
// tree into child processes so a re-invoked controller can detect drift
// without consulting external state.
const SnapshotsEnvVar = "STAGEHAND_SNAPSHOTS"

// ProcessConfigurationSnapshot records what a package resolved to when the
// current process tree was launched.
type ProcessConfigurationSnapshot struct {
	// PackageName is the root package the snapshot was taken for.
	PackageName string `json:"package_name"`

	// Version is the resolved version of that package.
	Version string `json:"version"`

	// Requires holds the package's requirement references in canonical
	// "name@constraint" form.
	Requires []string `json:"requires"`
}

// SnapshotOf captures pkg's identity and requirement set.
func SnapshotOf(pkg *pkgdef.Package) ProcessConfigurationSnapshot {
	snap := ProcessConfigurationSnapshot{
		PackageName: pkg.Name,
		Version:     pkg.Version,
	}
	for _, ref := range pkg.Requires {
		snap.Requires = append(snap.Requires, ref.String())
	}
	return snap
}

// Compatible reports whether other could be the same configuration: equal
// versions and equal requirement sets, ignoring requirement order.
func (s ProcessConfigurationSnapshot) Compatible(other ProcessConfigurationSnapshot) bool {
	if s.PackageName != other.PackageName || s.Version != other.Version {
		return false
	}
	if len(s.Requires) != len(other.Requires) {
		return false
	}
	a := append([]string(nil), s.Requires...)
	b := append([]string(nil), other.Requires...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s ProcessConfigurationSnapshot) String() string {
	return fmt.Sprintf("%s-%s requires [%s]", s.PackageName, s.Version, strings.Join(s.Requires, ", "))
}

// DecodeSnapshots parses the snapshot list from environ, which holds
// "KEY=value" entries as returned by os.Environ. A missing or empty
// variable yields no snapshots.
func DecodeSnapshots(environ []string) ([]ProcessConfigurationSnapshot, error) {
	prefix := SnapshotsEnvVar + "="
	for _, entry := range environ {
		if !strings.HasPrefix(entry, prefix) {
			continue
		}
		raw := entry[len(prefix):]
		if raw == "" {
			return nil, nil
		}
		var snaps []ProcessConfigurationSnapshot
		if err := json.Unmarshal([]byte(raw), &snaps); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", SnapshotsEnvVar, err)
		}
		return snaps, nil
	}
	return nil, nil
}

// EncodeSnapshots serializes snaps for the child environment.
func EncodeSnapshots(snaps []ProcessConfigurationSnapshot) (string, error) {
	raw, err := json.Marshal(snaps)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshots: %w", err)
	}
	return string(raw), nil
}

// mergeSnapshot returns snaps with snap replacing any entry for the same
// package, or appended if none exists.
func mergeSnapshot(snaps []ProcessConfigurationSnapshot, snap ProcessConfigurationSnapshot) []ProcessConfigurationSnapshot {
	out := make([]ProcessConfigurationSnapshot, 0, len(snaps)+1)
	replaced := false
	for _, s := range snaps {
		if s.PackageName == snap.PackageName {
			out = append(out, snap)
			replaced = true
			continue
		}
		out = append(out, s)
	}
	if !replaced {
		out = append(out, snap)
	}
	return out
}
