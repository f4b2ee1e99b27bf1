// Package safety implements optional root confinement for delete targets.
package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrAllowedRoot    = errors.New("target is an allowed root")
	ErrTraversal      = errors.New("path traversal detected")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator confines delete targets to a set of allowed roots.
type Validator struct {
	AllowedRoots   []string
	ProtectedPaths []string
}

// NewValidator creates a validator with allowed roots and optional additional protected paths
func NewValidator(allowed []string, extraProtected []string) *Validator {
	return &Validator{
		AllowedRoots:   normalizeRoots(allowed),
		ProtectedPaths: append(systemProtected(), normalizeRoots(extraProtected)...),
	}
}

// Check returns nil when path may be handed to a removal primitive.
// The returned error wraps one of the package sentinels and names the path.
func (v *Validator) Check(path string) error {
	if DetectTraversal(path) {
		return refusal(ErrTraversal, path)
	}

	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if IsProtectedPath(p, v.ProtectedPaths) {
		return refusal(ErrProtectedPath, p)
	}
	for _, root := range v.AllowedRoots {
		if p == root {
			return refusal(ErrAllowedRoot, p)
		}
	}
	if !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return refusal(ErrOutsideAllowed, p)
	}

	escaped, err := DetectSymlinkEscape(p, v.AllowedRoots)
	if err != nil {
		// A missing target is reported by the removal primitive itself.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("resolve %s: %w", p, err)
	}
	if escaped {
		return refusal(ErrSymlinkEscape, p)
	}
	return nil
}

// IsRefusal reports whether err is a policy refusal from Check, as opposed to
// a filesystem error met while resolving the path.
func IsRefusal(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidPath, ErrProtectedPath, ErrOutsideAllowed,
		ErrAllowedRoot, ErrTraversal, ErrSymlinkEscape,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func refusal(kind error, path string) error {
	return fmt.Errorf("%w: %s", kind, path)
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal reports any ".." segment in raw input.
func DetectTraversal(raw string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(raw), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	p := filepath.Clean(path)
	for _, r := range allowedRoots {
		if hasPathPrefix(p, r) {
			return true
		}
	}
	return false
}

// DetectSymlinkEscape resolves the parent directory chain and the entry itself
// and reports whether the result lands outside every allowed root.
// Only the final link target matters: removing a symlink never touches its target,
// but a symlinked parent directory would redirect the removal.
func DetectSymlinkEscape(cleanAbs string, allowedRoots []string) (bool, error) {
	parent, err := filepath.EvalSymlinks(filepath.Dir(cleanAbs))
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(cleanAbs); err != nil {
		return false, err
	}
	resolved := filepath.Join(parent, filepath.Base(cleanAbs))
	return !IsWithinAllowedRoots(resolved, resolvedRoots(allowedRoots)), nil
}

// resolvedRoots resolves symlinks in the roots themselves (e.g. /tmp on macOS).
func resolvedRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if rr, err := filepath.EvalSymlinks(r); err == nil {
			out = append(out, rr)
			continue
		}
		out = append(out, r)
	}
	return out
}

// IsProtectedPath checks if path is, or lies below, a protected path.
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)
	if p == string(os.PathSeparator) {
		return true
	}
	for _, prot := range protected {
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == prefix
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		p, err := NormalizePath(r)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func systemProtected() []string {
	return []string{
		"/",
		"/bin",
		"/boot",
		"/dev",
		"/etc",
		"/lib",
		"/lib64",
		"/proc",
		"/sbin",
		"/sys",
		"/usr",
		"/var/lib/safe-delete",
	}
}
