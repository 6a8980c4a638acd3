// Package config loads stagehand package documents from YAML files and
// exposes them to the environment resolver and the action registry.
//
// Documents are validated twice on load: structurally with
// go-playground/validator, then against the built-in CUE schemas. Packages
// may carry a Starlark commands block; config provides the evaluator that
// turns those scripts into environment edits at resolution time.
package config
