// Package sandbox confines all tool-originated filesystem and process activity
// to a single workspace root. It is the second line of defense: the process is
// expected to already run inside an isolated environment (restricted mount,
// dropped capabilities, resource limits), and nothing here assumes that outer
// layer is perfect.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LockFileName is created O_EXCL in the root so that two runs can never share
// a workspace. Sequential tool calls need no locking; concurrent runs do.
const LockFileName = ".autoprobe.lock"

// PathError is a rejected or failed path resolution. The Reason string is
// written for the model, not for a human operator: it carries enough context
// (directory listings, the first missing ancestor) for the caller to
// self-correct on the next turn.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: %s", e.Path, e.Reason)
}

// Sandbox validates candidate paths against a canonicalized root.
type Sandbox struct {
	root     string // absolute, symlinks resolved
	lockPath string
}

// New canonicalizes root, verifies it is an existing directory, and takes the
// single-run lock. Callers must Close the sandbox to release the lock.
func New(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	lockPath := filepath.Join(canonical, LockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("workspace %q is already in use by another run (remove %s if that run is dead)", canonical, LockFileName)
		}
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	fmt.Fprintf(f, "pid %d\n", os.Getpid())
	f.Close()

	return &Sandbox{root: canonical, lockPath: lockPath}, nil
}

// Close releases the single-run lock.
func (s *Sandbox) Close() error {
	return os.Remove(s.lockPath)
}

// Root returns the canonical workspace root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve validates rel against the root and returns the absolute path it
// designates. The target does not have to exist. Rejection happens in two
// stages: a string-level check (absolute paths and any ".." segment are
// refused before the filesystem is touched), then a canonicalization check
// (the deepest existing ancestor has its symlinks resolved and the result
// must still sit under the root, which defeats symlink escapes a plain
// prefix check on the unresolved path would miss).
func (s *Sandbox) Resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return s.root, nil
	}
	if filepath.IsAbs(rel) {
		return "", &PathError{Path: rel, Reason: "absolute paths are not allowed; use a path relative to the project root"}
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", &PathError{Path: rel, Reason: "path traversal ('..') is not allowed"}
		}
	}

	joined := filepath.Join(s.root, rel)
	canonical, err := canonicalize(joined)
	if err != nil {
		return "", &PathError{Path: rel, Reason: "cannot resolve: " + err.Error()}
	}
	if canonical != s.root && !strings.HasPrefix(canonical, s.root+string(filepath.Separator)) {
		return "", &PathError{Path: rel, Reason: "resolves outside the project root"}
	}
	return canonical, nil
}

// ResolveFile is Resolve plus existence and regular-file checks, with the
// diagnostic enrichment the read-side tools rely on: a missing file reports
// the parent's entries (or the first missing ancestor), and a directory
// reports its own entries.
func (s *Sandbox) ResolveFile(rel string) (string, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &PathError{Path: rel, Reason: s.notFoundDetail(abs)}
		}
		return "", &PathError{Path: rel, Reason: err.Error()}
	}
	if info.IsDir() {
		return "", &PathError{Path: rel, Reason: "is a directory, not a file. Entries: " + listEntries(abs)}
	}
	return abs, nil
}

// notFoundDetail describes why abs does not exist. If the parent directory
// exists its entries are enumerated; otherwise the first missing ancestor on
// the way down from the root is named.
func (s *Sandbox) notFoundDetail(abs string) string {
	parent := filepath.Dir(abs)
	if _, err := os.Stat(parent); err == nil {
		return fmt.Sprintf("not found. Entries in %s: %s",
			s.relToRoot(parent), listEntries(parent))
	}

	// Walk down from the root to find where the path first diverges.
	probe := s.root
	rel, _ := filepath.Rel(s.root, abs)
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		next := filepath.Join(probe, seg)
		if _, err := os.Stat(next); err != nil {
			return fmt.Sprintf("not found: directory %q does not exist. Entries in %s: %s",
				s.relToRoot(next), s.relToRoot(probe), listEntries(probe))
		}
		probe = next
	}
	return "not found"
}

func (s *Sandbox) relToRoot(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." {
		return "<project root>"
	}
	return rel
}

// canonicalize resolves symlinks in path. When the full path does not exist
// yet (the write tool creates files), the deepest existing ancestor is
// resolved and the nonexistent tail is re-joined cleanly.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	existing := path
	var tail []string
	for {
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append(tail, filepath.Base(existing))
		existing = parent
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
	}
	return filepath.Clean(path), nil
}

const maxListedEntries = 50

// listEntries renders a directory's immediate entries for diagnostics,
// sorted, capped, directories suffixed with "/".
func listEntries(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "<unreadable>"
	}
	if len(entries) == 0 {
		return "<empty>"
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == LockFileName {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > maxListedEntries {
		names = append(names[:maxListedEntries], fmt.Sprintf("... (%d more)", len(names)-maxListedEntries))
	}
	return strings.Join(names, ", ")
}
