// Package storage provides the hierarchical resource space the project
// model mirrors, plus per-resource persistent properties.
//
// Paths are slash separated and relative to the backend root. The empty
// path is the root itself.
package storage

import (
	"errors"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a resource does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrExists is returned when creating a resource that already exists
	ErrExists = errors.New("resource already exists")
	// ErrOutsideRoot is returned for paths escaping the backend root
	ErrOutsideRoot = errors.New("path escapes storage root")
)

// Info describes one storage resource.
type Info struct {
	Name   string
	Path   string
	IsDir  bool
	IsLink bool
	Hidden bool
	Inode  uint64
}

// WalkFunc is called for each resource below the walked folder. Returning
// false stops descent into that resource.
type WalkFunc func(info Info) bool

// Backend is a hierarchical resource store.
type Backend interface {
	Root() string
	Stat(p string) (Info, error)
	Exists(p string) bool
	Members(p string, includeHidden bool) ([]Info, error)
	Walk(p string, fn WalkFunc) error
	CreateFolder(p string) error
	CreateFile(p string, data []byte) error
	Delete(p string) error
	Copy(src, dst string, shallow bool) error
	Move(src, dst string) error
}

// Join joins path segments, dropping empty ones.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return path.Clean(strings.Join(parts, "/"))
}

// Parent returns the parent path, or "" for a top-level resource.
func Parent(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Base returns the last path segment.
func Base(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// Rel returns p relative to base, or p unchanged when base is not a prefix.
func Rel(base, p string) string {
	if base == "" {
		return p
	}
	if p == base {
		return ""
	}
	if strings.HasPrefix(p, base+"/") {
		return p[len(base)+1:]
	}
	return p
}

// IsPrefix reports whether p is base or lies below it.
func IsPrefix(base, p string) bool {
	return base == "" || p == base || strings.HasPrefix(p, base+"/")
}

// IsHidden reports whether a resource name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Segments splits p into its segments.
func Segments(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
