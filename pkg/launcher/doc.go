// Package launcher drives a launch end to end: resolve the environment,
// check re-entry drift, evaluate launch policies, apply the staged action
// transaction, and hand the process to the delegate for spawn or exec.
package launcher
