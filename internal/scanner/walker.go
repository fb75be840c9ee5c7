package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mnemos/internal/logging"
)

// Directories never descended into, regardless of mode. The state
// directory is excluded so the pipeline cannot learn from its own
// output.
var excludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".mnemos":      true,
	".idea":        true,
	".vscode":      true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// basicExts is the shallow-mode allowlist: source and doc formats where
// quick extraction pays off.
var basicExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true,
	".rs": true, ".java": true, ".rb": true, ".sh": true,
	".md": true, ".txt": true,
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
}

// deepExts extends the allowlist when multi-pass analysis is on.
var deepExts = map[string]bool{
	".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".tsx": true, ".jsx": true, ".kt": true, ".swift": true,
	".sql": true, ".proto": true, ".graphql": true,
	".css": true, ".html": true, ".tf": true, ".ini": true,
}

// Walker enumerates scannable files under a resolved sandbox root.
// Symlinks are resolved before any read and anything escaping the root
// is rejected, so a link to /etc cannot leak host files into the
// pipeline.
type Walker struct {
	root string
	deep bool
}

// NewWalker resolves root (following symlinks) and returns a walker
// confined to it.
func NewWalker(root string, deep bool) (*Walker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}
	return &Walker{root: resolved, deep: deep}, nil
}

// Root returns the resolved sandbox root.
func (w *Walker) Root() string {
	return w.root
}

// allowed reports whether the extension is scannable in the current mode.
func (w *Walker) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if basicExts[ext] {
		return true
	}
	return w.deep && deepExts[ext]
}

// inside reports whether resolved sits under the sandbox root.
func (w *Walker) inside(resolved string) bool {
	return resolved == w.root || strings.HasPrefix(resolved, w.root+string(filepath.Separator))
}

// Walk returns root-relative paths of scannable files, in walk order.
// The context is checked at every directory so a stop request does not
// wait out a large tree.
func (w *Walker) Walk(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Get(logging.CategoryScanner).Debug("walk error at %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if path != w.root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !w.inside(resolved) {
				logging.Get(logging.CategoryScanner).Warn("rejecting symlink escaping sandbox: %s", path)
				return nil
			}
			info, err := os.Stat(resolved)
			if err != nil || info.IsDir() {
				return nil
			}
		}

		if !w.allowed(path) {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return files, err
	}
	return files, nil
}

// ReadFile resolves a root-relative path inside the sandbox and reads at
// most maxBytes of it (the whole file when maxBytes <= 0). Paths that
// resolve outside the root are rejected before any read.
func (w *Walker) ReadFile(rel string, maxBytes int) ([]byte, error) {
	path := filepath.Join(w.root, rel)
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rel, err)
	}
	if !w.inside(resolved) {
		return nil, fmt.Errorf("path escapes scan root: %s", rel)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		data = data[:maxBytes]
	}
	return data, nil
}
