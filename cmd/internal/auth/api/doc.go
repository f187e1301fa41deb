// Package authapi exposes Parley's authentication endpoints over HTTP.
//
// Access tokens travel in the Authorization header as bearer tokens;
// refresh secrets travel only in an HTTP-only cookie scoped to the
// refresh path, so browser scripts never see them.
package authapi
