// Package identity holds Parley's user model and its persistence boundary.
//
// The session subsystem reads identities through this package but never
// mutates them; registration is the only write path.
package identity
