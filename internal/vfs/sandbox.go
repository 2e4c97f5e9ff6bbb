package vfs

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

// Sandbox maps virtual paths to physical paths confined under one user's
// root directory. It is the single trust boundary for path handling: every
// component that touches the filesystem resolves through it.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at the given physical directory.
// Each user's files live under <root>/<userID>.
func NewSandbox(root string) *Sandbox {
	return &Sandbox{root: filepath.Clean(root)}
}

// Root returns the physical root holding all user sandboxes.
func (s *Sandbox) Root() string { return s.root }

// UserRoot returns the physical root directory for a user.
func (s *Sandbox) UserRoot(userID id.UserID) string {
	return filepath.Join(s.root, string(userID))
}

// Resolve maps a client-supplied virtual path to a physical path under the
// user's root. Escaping paths fail with a security error before any
// filesystem call is made. The empty path and "/" resolve to the user root.
func (s *Sandbox) Resolve(userID id.UserID, virtual string) (string, error) {
	if userID == "" {
		return "", vfserr.Security("no user scope for path resolution")
	}
	norm, err := Normalize(virtual)
	if err != nil {
		return "", err
	}

	root := s.UserRoot(userID)
	phys := filepath.Join(root, filepath.FromSlash(norm))

	// Containment re-check after joining. Normalize already rejects every
	// climbing path, so a failure here means a logic bug, but the sandbox
	// never hands out a path without verifying the prefix.
	if phys != root && !strings.HasPrefix(phys, root+string(filepath.Separator)) {
		return "", vfserr.Security("path escapes user root")
	}
	return phys, nil
}

// Normalize canonicalizes a virtual path: forward slashes only, rooted at
// "/", repeated separators collapsed. Paths carrying ".." segments or NUL
// bytes are rejected outright rather than clamped, so a traversal attempt
// is always visible to the caller as a security failure.
func Normalize(virtual string) (string, error) {
	if strings.ContainsRune(virtual, 0) {
		return "", vfserr.Security("path contains NUL byte")
	}

	p := strings.ReplaceAll(virtual, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", vfserr.Security("path traversal not allowed")
		}
	}

	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p), nil
}

// nameStrip matches the hostile characters removed from user-supplied entry
// names. Same set the desktop clients enforce.
const nameStrip = `<>:"/\|?*`

// SanitizeName strips path and control characters from an entry name. An
// empty result after stripping is a validation failure.
func SanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(nameStrip, r) {
			continue
		}
		b.WriteRune(r)
	}
	clean := b.String()
	if clean == "" || clean == "." || clean == ".." {
		return "", vfserr.Validation("name is empty or contains only invalid characters")
	}
	return clean, nil
}
