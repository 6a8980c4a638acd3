// Package pkgdef defines the package model for stagehand: named, versioned
// units that contribute environment edits, requirements on other packages,
// and optional pre-launch actions.
//
// Packages are constructed from configuration documents at resolution time
// and are immutable afterwards. The environment compositor (pkg/envres)
// walks the requirement closure of a root package and folds each package's
// edits into a flat environment.
package pkgdef
