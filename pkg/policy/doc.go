// Package policy evaluates Rego launch policies before a program is
// started. Policies receive the launch request (program, arguments,
// resolved packages, environment) as input and emit deny violations;
// violations at error severity or above refuse the launch.
package policy
