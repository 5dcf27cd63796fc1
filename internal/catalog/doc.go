// Package catalog holds the static table of direct conversions per domain.
//
// A Catalog is built once from a slice of Edge values (usually Default) and is
// read-only afterwards, so it can be shared by every resolver and job without
// locking. Formats are scoped by Domain: "mp4" in the generic domain and "mp4"
// in the video domain are unrelated identifiers.
package catalog
