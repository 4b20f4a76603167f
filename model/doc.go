// Package model holds the in-memory password database: a tree of groups and
// entries, the binary table entries reference by positional handle, and the
// custom icon table keyed by UUID.
//
// Node references are resolved through the owning Database. A reference that
// does not resolve is not an error at this layer; consumers such as the pool
// builders skip it.
package model
