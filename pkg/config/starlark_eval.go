package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// CommandEvaluator runs package commands scripts and collects the
// environment edits they emit. It implements envres.CommandEvaluator.
type CommandEvaluator struct {
	timeout time.Duration
}

// NewCommandEvaluator creates an evaluator. A zero timeout selects a
// 30 second default.
func NewCommandEvaluator(timeout time.Duration) *CommandEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CommandEvaluator{timeout: timeout}
}

// EvalCommands executes pkg's commands script and returns the edits it
// emitted, in script order. Scripts see an env module with set, prepend,
// append, and unset functions plus the package's data map.
func (ce *CommandEvaluator) EvalCommands(ctx context.Context, pkg *pkgdef.Package) ([]pkgdef.EnvEdit, error) {
	evalCtx, cancel := context.WithTimeout(ctx, ce.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "commands:" + pkg.Name,
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts have no stdout; drop prints.
		},
	}

	stop := context.AfterFunc(evalCtx, func() {
		thread.Cancel(evalCtx.Err().Error())
	})
	defer stop()

	rec := &editRecorder{}
	predeclared, err := ce.predeclared(pkg, rec)
	if err != nil {
		return nil, err
	}

	if _, err := starlark.ExecFile(thread, pkg.Name+"/commands.star", pkg.Commands, predeclared); err != nil {
		if evalCtx.Err() != nil {
			return nil, fmt.Errorf("commands for package %s timed out after %v", pkg.Name, ce.timeout)
		}
		return nil, fmt.Errorf("commands for package %s failed: %w", pkg.Name, err)
	}

	return rec.edits, nil
}

func (ce *CommandEvaluator) predeclared(pkg *pkgdef.Package, rec *editRecorder) (starlark.StringDict, error) {
	data := starlark.NewDict(len(pkg.Data))
	for key, val := range pkg.Data {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("package %s: data key %s: %w", pkg.Name, key, err)
		}
		if err := data.SetKey(starlark.String(key), sv); err != nil {
			return nil, fmt.Errorf("package %s: data key %s: %w", pkg.Name, key, err)
		}
	}

	env := &starlarkstruct.Module{
		Name: "env",
		Members: starlark.StringDict{
			"set":     starlark.NewBuiltin("env.set", rec.set),
			"prepend": starlark.NewBuiltin("env.prepend", rec.prepend),
			"append":  starlark.NewBuiltin("env.append", rec.appendTo),
			"unset":   starlark.NewBuiltin("env.unset", rec.unset),
		},
	}

	return starlark.StringDict{
		"struct":  starlarkstruct.Default,
		"env":     env,
		"data":    data,
		"name":    starlark.String(pkg.Name),
		"version": starlark.String(pkg.Version),
	}, nil
}

// editRecorder accumulates edits emitted by the env builtins.
type editRecorder struct {
	edits []pkgdef.EnvEdit
}

func (r *editRecorder) set(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, value string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "var", &name, "value", &value); err != nil {
		return nil, err
	}
	r.edits = append(r.edits, pkgdef.EnvEdit{Var: name, Kind: pkgdef.EditSet, Value: value})
	return starlark.None, nil
}

func (r *editRecorder) prepend(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return r.listEdit(fn, args, kwargs, pkgdef.EditPrepend)
}

func (r *editRecorder) appendTo(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return r.listEdit(fn, args, kwargs, pkgdef.EditAppend)
}

func (r *editRecorder) listEdit(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, kind pkgdef.EditKind) (starlark.Value, error) {
	var name, value, sep string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "var", &name, "value", &value, "sep?", &sep); err != nil {
		return nil, err
	}
	r.edits = append(r.edits, pkgdef.EnvEdit{Var: name, Kind: kind, Value: value, Sep: sep})
	return starlark.None, nil
}

func (r *editRecorder) unset(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "var", &name); err != nil {
		return nil, err
	}
	r.edits = append(r.edits, pkgdef.EnvEdit{Var: name, Kind: pkgdef.EditUnset})
	return starlark.None, nil
}

// toStarlarkValue converts a decoded YAML value to its Starlark form.
func toStarlarkValue(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for key, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(key), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
