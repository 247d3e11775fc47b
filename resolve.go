package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathResolver turns a `-lname` namespec into a concrete file path,
// mirroring the search-path walk the teacher's own import_resolver.go
// does for its dependency graph, adapted here to the much narrower ld
// convention: search each `-L` directory in order, preferring
// `libname.so` unless `-static` is in effect for this item, falling back
// to `libname.a`.
type PathResolver struct {
	SearchDirs []string
}

func (r *PathResolver) Resolve(name string, static bool) (string, error) {
	candidates := []string{"lib" + name + ".a"}
	if !static {
		candidates = []string{"lib" + name + ".so", "lib" + name + ".a"}
	}

	for _, dir := range r.SearchDirs {
		for _, cand := range candidates {
			p := filepath.Join(dir, cand)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("cannot find -l%s in any of %v", name, r.SearchDirs)
}
