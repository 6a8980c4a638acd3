package config

// Document is the root of a stagehand YAML configuration file.
type Document struct {
	// Packages maps package names to their definitions.
	Packages map[string]PackageDoc `yaml:"packages" validate:"dive"`

	// Actions holds action data blocks keyed by action type, then action
	// name. The values are free-form maps decoded into the operation's
	// data struct on demand.
	Actions map[string]map[string]map[string]any `yaml:"actions"`

	// Policies lists Rego policy files evaluated before a launch.
	Policies []string `yaml:"policies"`
}

// PackageDoc is the YAML form of a package definition.
type PackageDoc struct {
	// Version is the concrete version of this package.
	Version string `yaml:"version" validate:"required"`

	// Requires lists requirement references ("name" or "name@constraint").
	Requires []string `yaml:"requires"`

	// Aliases are alternative names this package can be requested by.
	Aliases []string `yaml:"aliases"`

	// Env lists environment edits applied in document order.
	Env []EnvEditDoc `yaml:"env" validate:"dive"`

	// Executable is the program path template for root packages.
	Executable string `yaml:"executable"`

	// Actions references operations staged before the program starts.
	Actions []ActionRefDoc `yaml:"actions" validate:"dive"`

	// Commands is an optional Starlark script emitting further env edits.
	Commands string `yaml:"commands"`

	// Data holds values available to templates and the commands script.
	Data map[string]any `yaml:"data"`
}

// EnvEditDoc is one environment edit. Exactly one of Set, Prepend, Append,
// or Unset must be given; pointers distinguish an empty value from an
// absent key.
type EnvEditDoc struct {
	Var     string  `yaml:"var" validate:"required"`
	Set     *string `yaml:"set"`
	Prepend *string `yaml:"prepend"`
	Append  *string `yaml:"append"`
	Unset   bool    `yaml:"unset"`

	// Sep overrides the list separator for Prepend and Append.
	Sep string `yaml:"sep"`
}

// ActionRefDoc references an action data block by type and name.
type ActionRefDoc struct {
	Type string `yaml:"type" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}
