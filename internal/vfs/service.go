package vfs

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

// Service implements the per-user VFS operation set. All paths are virtual
// and resolved through the sandbox; the physical filesystem is the source of
// truth and no entry state is cached.
type Service struct {
	sandbox  *Sandbox
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a VFS service over the given sandbox. Mutating
// operations report affected directories to the notifier.
func NewService(sandbox *Sandbox, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sandbox: sandbox, notifier: notifier, logger: logger}
}

// Sandbox exposes the underlying path sandbox for collaborators that resolve
// paths across user roots (the sharing subsystem).
func (s *Service) Sandbox() *Sandbox { return s.sandbox }

// SetNotifier late-binds the change broadcaster. The service and the hub
// reference each other (mutations notify the hub, the hub recomputes
// listings), so one side is bound after construction.
func (s *Service) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// ProvisionRoot creates a user's root directory. Called at signup.
func (s *Service) ProvisionRoot(userID id.UserID) error {
	if err := os.MkdirAll(s.sandbox.UserRoot(userID), 0o755); err != nil {
		return vfserr.Internal(err)
	}
	return nil
}

// List returns the entries under a directory, or a single-entry listing when
// the path names a file.
func (s *Service) List(userID id.UserID, virtual string) ([]Entry, error) {
	phys, err := s.sandbox.Resolve(userID, virtual)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(phys)
	if err != nil {
		return nil, vfserr.FromOS(err, "path not found")
	}

	if !info.IsDir() {
		size := info.Size()
		return []Entry{{Name: info.Name(), Type: KindFile, Size: &size}}, nil
	}

	dirents, err := os.ReadDir(phys)
	if err != nil {
		return nil, vfserr.FromOS(err, "path not found")
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		e := Entry{Name: d.Name(), Type: KindFolder}
		if !d.IsDir() {
			e.Type = KindFile
			if fi, err := d.Info(); err == nil {
				size := fi.Size()
				e.Size = &size
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Create makes a new empty file or folder under parentPath. The name is
// sanitized before use; intermediate directories for the parent are created
// as needed. Concurrent creators race on the filesystem: exactly one wins,
// the rest see AlreadyExists.
func (s *Service) Create(userID id.UserID, parentPath, name, kind string) error {
	if kind != KindFile && kind != KindFolder {
		return vfserr.Validation("type must be \"file\" or \"folder\"")
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return err
	}

	parent, err := s.sandbox.Resolve(userID, parentPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return vfserr.FromOS(err, "parent path not found")
	}

	target := filepath.Join(parent, clean)
	if kind == KindFolder {
		err = os.Mkdir(target, 0o755)
	} else {
		var f *os.File
		f, err = os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			err = f.Close()
		}
	}
	if err != nil {
		return vfserr.FromOS(err, "parent path not found")
	}

	s.logger.Debug("created entry",
		zap.String("user", userID.String()),
		zap.String("path", path.Join(parentPath, clean)),
		zap.String("type", kind),
	)
	s.notify(userID, parentPath)
	return nil
}

// ReadFile returns the whole contents of a file as text.
func (s *Service) ReadFile(userID id.UserID, virtual string) (string, error) {
	phys, err := s.resolveFile(userID, virtual)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(phys)
	if err != nil {
		return "", vfserr.FromOS(err, "file not found")
	}
	return string(data), nil
}

// ReadFileBytes returns the whole contents of a file as raw bytes.
func (s *Service) ReadFileBytes(userID id.UserID, virtual string) ([]byte, error) {
	phys, err := s.resolveFile(userID, virtual)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(phys)
	if err != nil {
		return nil, vfserr.FromOS(err, "file not found")
	}
	return data, nil
}

// WriteFile replaces the contents of an existing file. After success a
// subsequent read returns exactly what was written.
func (s *Service) WriteFile(userID id.UserID, virtual, content string) error {
	phys, err := s.resolveFile(userID, virtual)
	if err != nil {
		return err
	}
	if err := os.WriteFile(phys, []byte(content), 0o644); err != nil {
		return vfserr.FromOS(err, "file not found")
	}
	s.notify(userID, path.Dir(mustNormalize(virtual)))
	return nil
}

// Delete removes a file or an empty directory. Populated directories fail
// with NotEmpty; recursive removal is DeleteRecursive's job.
func (s *Service) Delete(userID id.UserID, virtual string) error {
	phys, err := s.sandbox.Resolve(userID, virtual)
	if err != nil {
		return err
	}
	if _, err := os.Stat(phys); err != nil {
		return vfserr.FromOS(err, "item not found")
	}
	if err := os.Remove(phys); err != nil {
		return vfserr.FromOS(err, "item not found")
	}
	s.notify(userID, path.Dir(mustNormalize(virtual)))
	return nil
}

// DeleteRecursive removes a file or a directory and all descendants.
func (s *Service) DeleteRecursive(userID id.UserID, virtual string) error {
	phys, err := s.sandbox.Resolve(userID, virtual)
	if err != nil {
		return err
	}
	if _, err := os.Stat(phys); err != nil {
		return vfserr.FromOS(err, "item not found")
	}
	if err := os.RemoveAll(phys); err != nil {
		return vfserr.FromOS(err, "item not found")
	}
	s.notify(userID, path.Dir(mustNormalize(virtual)))
	return nil
}

// Move relocates or renames an entry. Intermediate directories for the
// destination's parent are created as needed.
func (s *Service) Move(userID id.UserID, src, dst string) error {
	srcPhys, err := s.sandbox.Resolve(userID, src)
	if err != nil {
		return err
	}
	dstPhys, err := s.sandbox.Resolve(userID, dst)
	if err != nil {
		return err
	}
	if containsPath(srcPhys, dstPhys) {
		return vfserr.Validation("destination is inside the source")
	}
	if _, err := os.Stat(srcPhys); err != nil {
		return vfserr.FromOS(err, "source path not found")
	}
	if err := os.MkdirAll(filepath.Dir(dstPhys), 0o755); err != nil {
		return vfserr.FromOS(err, "destination path not found")
	}
	if err := os.Rename(srcPhys, dstPhys); err != nil {
		return vfserr.FromOS(err, "source path not found")
	}
	s.notify(userID, path.Dir(mustNormalize(src)))
	s.notify(userID, path.Dir(mustNormalize(dst)))
	return nil
}

// Copy duplicates an entry. An existing destination is never silently
// overwritten.
func (s *Service) Copy(userID id.UserID, src, dst string) error {
	srcPhys, err := s.sandbox.Resolve(userID, src)
	if err != nil {
		return err
	}
	dstPhys, err := s.sandbox.Resolve(userID, dst)
	if err != nil {
		return err
	}
	if containsPath(srcPhys, dstPhys) {
		return vfserr.Validation("destination is inside the source")
	}
	if _, err := os.Stat(srcPhys); err != nil {
		return vfserr.FromOS(err, "source path not found")
	}
	if _, err := os.Stat(dstPhys); err == nil {
		return vfserr.AlreadyExists("destination already exists")
	} else if !os.IsNotExist(err) {
		return vfserr.Internal(err)
	}
	if err := os.MkdirAll(filepath.Dir(dstPhys), 0o755); err != nil {
		return vfserr.FromOS(err, "destination path not found")
	}
	if err := copyTree(srcPhys, dstPhys); err != nil {
		return vfserr.FromOS(err, "source path not found")
	}
	s.notify(userID, path.Dir(mustNormalize(dst)))
	return nil
}

// Metadata returns name, kind, size and timestamps for a single entry.
func (s *Service) Metadata(userID id.UserID, virtual string) (*Metadata, error) {
	phys, err := s.sandbox.Resolve(userID, virtual)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(phys)
	if err != nil {
		return nil, vfserr.FromOS(err, "path not found")
	}

	kind := KindFile
	if info.IsDir() {
		kind = KindFolder
	}
	norm := mustNormalize(virtual)
	name := path.Base(norm)
	if norm == "/" {
		name = "/"
	}
	return &Metadata{
		Name:       name,
		Path:       norm,
		Type:       kind,
		Size:       info.Size(),
		CreatedAt:  creationTime(info),
		ModifiedAt: info.ModTime(),
	}, nil
}

// Upload writes an uploaded blob into dirPath, creating intermediate
// directories as needed. Binary-safe; an existing file of the same name is
// replaced.
func (s *Service) Upload(userID id.UserID, dirPath, fileName string, data []byte) error {
	clean, err := SanitizeName(fileName)
	if err != nil {
		return err
	}
	dir, err := s.sandbox.Resolve(userID, dirPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vfserr.FromOS(err, "directory not found")
	}
	if err := os.WriteFile(filepath.Join(dir, clean), data, 0o644); err != nil {
		return vfserr.FromOS(err, "directory not found")
	}
	s.notify(userID, dirPath)
	return nil
}

// CopyAcrossUsers copies srcVirtual from the source user's sandbox to the
// top of the target user's root under dstName. This is the only sanctioned
// cross-user filesystem access; only the sharing subsystem calls it.
func (s *Service) CopyAcrossUsers(srcUser id.UserID, srcVirtual string, dstUser id.UserID, dstName string) error {
	clean, err := SanitizeName(dstName)
	if err != nil {
		return err
	}
	srcPhys, err := s.sandbox.Resolve(srcUser, srcVirtual)
	if err != nil {
		return err
	}
	dstPhys, err := s.sandbox.Resolve(dstUser, "/"+clean)
	if err != nil {
		return err
	}
	if _, err := os.Stat(srcPhys); err != nil {
		return vfserr.FromOS(err, "shared path no longer exists")
	}
	if err := os.MkdirAll(s.sandbox.UserRoot(dstUser), 0o755); err != nil {
		return vfserr.Internal(err)
	}
	if err := copyTree(srcPhys, dstPhys); err != nil {
		return vfserr.FromOS(err, "shared path no longer exists")
	}
	s.logger.Info("copied shared entry",
		zap.String("from", srcUser.String()),
		zap.String("to", dstUser.String()),
		zap.String("name", clean),
	)
	s.notify(dstUser, "/")
	return nil
}

func (s *Service) notify(userID id.UserID, dirPath string) {
	s.notifier.Notify(userID, mustNormalize(dirPath))
}

// resolveFile resolves a virtual path and rejects directories.
func (s *Service) resolveFile(userID id.UserID, virtual string) (string, error) {
	phys, err := s.sandbox.Resolve(userID, virtual)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(phys)
	if err != nil {
		return "", vfserr.FromOS(err, "file not found")
	}
	if info.IsDir() {
		return "", vfserr.IsDirectory("path is a directory, not a file")
	}
	return phys, nil
}

// mustNormalize is Normalize for paths already validated upstream; a hostile
// path at this point cannot happen, so it degrades to "/".
func mustNormalize(virtual string) string {
	norm, err := Normalize(virtual)
	if err != nil {
		return "/"
	}
	return norm
}

// containsPath reports whether dst is the same physical path as src or a
// descendant of it. Copying or moving a directory into its own subtree would
// recurse over its own output, so such destinations are rejected up front.
func containsPath(src, dst string) bool {
	if dst == src {
		return true
	}
	return strings.HasPrefix(dst, src+string(os.PathSeparator))
}

// copyTree copies a file or directory recursively. Directories are copied
// entry by entry, files whole.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	dirents, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, d := range dirents {
		if err := copyTree(filepath.Join(src, d.Name()), filepath.Join(dst, d.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
