package plugin

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Candidate is a directory entry that matches the plugin naming convention.
type Candidate struct {
	// Name is the plugin name: the file base name without extension and
	// without the naming suffix.
	Name string
	// File is the bare file name.
	File string
	// Path is the full path to the file.
	Path string
	// Dir is the directory the file was found in.
	Dir string
	// Ext is the lowercased file extension including the dot, or "".
	Ext string
}

// Resolver constructs a plugin object from a candidate. Returning an error
// wrapping ErrMissingProcessEvent marks the candidate as not satisfying the
// contract; any other error is a construction failure.
type Resolver interface {
	Resolve(ctx context.Context, c Candidate) (Plugin, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, c Candidate) (Plugin, error)

// Resolve calls f(ctx, c).
func (f ResolverFunc) Resolve(ctx context.Context, c Candidate) (Plugin, error) {
	return f(ctx, c)
}

// Resolvers selects a Resolver by file extension.
type Resolvers map[string]Resolver

// Register associates a resolver with an extension such as ".lua".
// The empty string matches files without an extension.
func (rs Resolvers) Register(ext string, r Resolver) {
	rs[strings.ToLower(ext)] = r
}

// Extensions returns the registered extensions.
func (rs Resolvers) Extensions() []string {
	out := make([]string, 0, len(rs))
	for ext := range rs {
		out = append(out, ext)
	}
	return out
}

func (rs Resolvers) lookup(ext string) (Resolver, bool) {
	r, ok := rs[ext]
	return r, ok
}

// Factory builds a compiled-in plugin.
type Factory func() (Plugin, error)

// Factories is a Resolver backed by a table of compiled-in constructors,
// keyed by plugin name.
type Factories map[string]Factory

// Resolve looks up the candidate's plugin name in the table.
func (fs Factories) Resolve(_ context.Context, c Candidate) (Plugin, error) {
	f, ok := fs[c.Name]
	if !ok {
		return nil, fmt.Errorf("no factory registered for %q", c.Name)
	}
	return f()
}

// Lister enumerates candidate file names in a directory.
type Lister interface {
	List(dir string) ([]string, error)
}

// DirLister lists regular entries of a filesystem directory.
type DirLister struct{}

// List returns the names of non-directory entries in dir.
func (DirLister) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
