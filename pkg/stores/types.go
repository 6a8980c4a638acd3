package stores

import "time"

// SnapshotPackage is one resolved package inside a snapshot.
type SnapshotPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Snapshot is a committed record of a resolved environment.
type Snapshot struct {
	// ID is a UUID assigned when the snapshot is saved.
	ID string `json:"id"`

	// Root is the requirement reference the environment was resolved for.
	Root string `json:"root"`

	// Program is the executable that was launched, if any.
	Program string `json:"program,omitempty"`

	// Packages lists every package in the resolved environment.
	Packages []SnapshotPackage `json:"packages"`

	CreatedAt time.Time `json:"created_at"`
}
