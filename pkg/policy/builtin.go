package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		programPathPolicy(),
		preloadHygienePolicy(),
	}
}

// programPathPolicy requires launches to name the program by absolute path.
func programPathPolicy() Policy {
	return Policy{
		Name:        "program-path",
		Description: "Launched programs must be named by absolute path",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package stagehand.policies.program

import rego.v1

deny contains violation if {
	not startswith(input.program, "/")
	violation := {
		"message": sprintf("program %q must be an absolute path", [input.program]),
		"severity": "error",
	}
}
`,
	}
}

// preloadHygienePolicy flags environments that inject code via LD_PRELOAD.
func preloadHygienePolicy() Policy {
	return Policy{
		Name:        "preload-hygiene",
		Description: "Warns when the composed environment sets LD_PRELOAD",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package stagehand.policies.preload

import rego.v1

deny contains violation if {
	input.env["LD_PRELOAD"]
	violation := {
		"message": sprintf("environment sets LD_PRELOAD=%q", [input.env["LD_PRELOAD"]]),
		"severity": "warning",
	}
}
`,
	}
}
