// Package actions maps declared action type names to transaction
// operations and provides the built-in file actions.
//
// Actions are declared by packages as (type, name) pairs; the data block
// for an action lives in the configuration store under
// "actions.<type>.<name>". The registry is populated by explicit
// registration at startup and is read-only afterwards.
package actions
