// Package envres implements stagehand's environment compositor: it
// resolves a root package's transitive requirement closure into a
// deterministic ordering (requirements before dependents, each package
// visited once) and folds every package's environment edits into a flat
// variable map seeded from the base OS environment.
//
// Resolution is where all configuration problems surface: unknown
// packages, requirement cycles, and unresolved template placeholders are
// reported here, before any transaction starts or process spawns.
package envres
