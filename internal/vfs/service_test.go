package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

const (
	testAlice = id.UserID("user_alice")
	testBob   = id.UserID("user_bob")
)

// recordingNotifier captures every Notify call for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) Notify(userID id.UserID, dirPath string) {
	r.mu.Lock()
	r.calls = append(r.calls, string(userID)+":"+dirPath)
	r.mu.Unlock()
}

func (r *recordingNotifier) has(userID id.UserID, dirPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := string(userID) + ":" + dirPath
	for _, c := range r.calls {
		if c == want {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T) (*Service, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	svc := NewService(NewSandbox(t.TempDir()), notifier, nil)
	require.NoError(t, svc.ProvisionRoot(testAlice))
	require.NoError(t, svc.ProvisionRoot(testBob))
	return svc, notifier
}

// TestCreateAndList tests folder and file creation plus listing
func TestCreateAndList(t *testing.T) {
	svc, notifier := newTestService(t)

	require.NoError(t, svc.Create(testAlice, "/", "docs", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/docs", "a.txt", KindFile))
	require.NoError(t, svc.Create(testAlice, "/docs", "b.txt", KindFile))

	entries, err := svc.List(testAlice, "/docs")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, KindFile, entries[0].Type)
	require.NotNil(t, entries[0].Size)
	assert.Equal(t, int64(0), *entries[0].Size)
	assert.Equal(t, "b.txt", entries[1].Name)

	root, err := svc.List(testAlice, "/")
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "docs", root[0].Name)
	assert.Equal(t, KindFolder, root[0].Type)
	assert.Nil(t, root[0].Size)

	assert.True(t, notifier.has(testAlice, "/docs"))
}

// TestListFileReturnsSingleEntry tests listing a file path
func TestListFileReturnsSingleEntry(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "solo.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/solo.txt", "abc"))

	entries, err := svc.List(testAlice, "/solo.txt")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "solo.txt", entries[0].Name)
	require.NotNil(t, entries[0].Size)
	assert.Equal(t, int64(3), *entries[0].Size)
}

// TestListMissingPath tests the not-found case
func TestListMissingPath(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.List(testAlice, "/nope")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotFound, vfserr.KindOf(err))
}

// TestCreateDuplicate tests that a second create of the same name conflicts
func TestCreateDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "x.txt", KindFile))
	err := svc.Create(testAlice, "/", "x.txt", KindFile)
	require.Error(t, err)
	assert.Equal(t, vfserr.KindAlreadyExists, vfserr.KindOf(err))

	require.NoError(t, svc.Create(testAlice, "/", "d", KindFolder))
	err = svc.Create(testAlice, "/", "d", KindFolder)
	require.Error(t, err)
	assert.Equal(t, vfserr.KindAlreadyExists, vfserr.KindOf(err))
}

// TestCreateInvalidKind tests kind validation
func TestCreateInvalidKind(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Create(testAlice, "/", "x", "symlink")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindValidation, vfserr.KindOf(err))
}

// TestCreateSanitizesName tests that hostile name characters are stripped
func TestCreateSanitizesName(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", `re<po|rt?.txt`, KindFile))

	entries, err := svc.List(testAlice, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.txt", entries[0].Name)
}

// TestConcurrentCreate tests that exactly one of N racing creators wins
func TestConcurrentCreate(t *testing.T) {
	svc, _ := newTestService(t)

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Create(testAlice, "/", "contested.txt", KindFile)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, vfserr.KindAlreadyExists, vfserr.KindOf(err))
		}
	}
	assert.Equal(t, 1, wins)
}

// TestWriteReadRoundTrip tests that a read returns exactly what was written
func TestWriteReadRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "note.txt", KindFile))

	content := "line one\nline two\nünïcode ✓\n"
	require.NoError(t, svc.WriteFile(testAlice, "/note.txt", content))

	got, err := svc.ReadFile(testAlice, "/note.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// TestReadDirectoryFails tests the file/directory distinction
func TestReadDirectoryFails(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "dir", KindFolder))

	_, err := svc.ReadFile(testAlice, "/dir")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindIsDirectory, vfserr.KindOf(err))

	err = svc.WriteFile(testAlice, "/dir", "nope")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindIsDirectory, vfserr.KindOf(err))
}

// TestWriteMissingFile tests that write does not create files
func TestWriteMissingFile(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.WriteFile(testAlice, "/ghost.txt", "data")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotFound, vfserr.KindOf(err))
}

// TestDeleteSemantics tests plain delete versus recursive delete
func TestDeleteSemantics(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "dir", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/dir", "a.txt", KindFile))

	// Populated directory refuses a plain delete.
	err := svc.Delete(testAlice, "/dir")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotEmpty, vfserr.KindOf(err))

	// File delete works.
	require.NoError(t, svc.Delete(testAlice, "/dir/a.txt"))

	// Empty directory delete works.
	require.NoError(t, svc.Delete(testAlice, "/dir"))

	_, err = svc.List(testAlice, "/dir")
	require.Error(t, err)
}

// TestDeleteRecursive tests subtree removal
func TestDeleteRecursive(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "dir", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/dir/nested", "deep.txt", KindFile))

	require.NoError(t, svc.DeleteRecursive(testAlice, "/dir"))
	_, err := svc.List(testAlice, "/dir")
	require.Error(t, err)

	// Missing target is still not-found.
	err = svc.DeleteRecursive(testAlice, "/dir")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotFound, vfserr.KindOf(err))
}

// TestMove tests rename and relocation with parent creation
func TestMove(t *testing.T) {
	svc, notifier := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "a.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/a.txt", "payload"))

	require.NoError(t, svc.Move(testAlice, "/a.txt", "/archive/2026/a.txt"))

	_, err := svc.ReadFile(testAlice, "/a.txt")
	require.Error(t, err)
	got, err := svc.ReadFile(testAlice, "/archive/2026/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", got)

	assert.True(t, notifier.has(testAlice, "/"))
	assert.True(t, notifier.has(testAlice, "/archive/2026"))
}

// TestMoveMissingSource tests the not-found case
func TestMoveMissingSource(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Move(testAlice, "/ghost", "/dst")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotFound, vfserr.KindOf(err))
}

// TestCopyFile tests single-file duplication
func TestCopyFile(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "src.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/src.txt", "copy me"))

	require.NoError(t, svc.Copy(testAlice, "/src.txt", "/dst.txt"))

	src, err := svc.ReadFile(testAlice, "/src.txt")
	require.NoError(t, err)
	dst, err := svc.ReadFile(testAlice, "/dst.txt")
	require.NoError(t, err)
	assert.Equal(t, src, dst)

	// Mutating the copy leaves the original alone.
	require.NoError(t, svc.WriteFile(testAlice, "/dst.txt", "changed"))
	src, err = svc.ReadFile(testAlice, "/src.txt")
	require.NoError(t, err)
	assert.Equal(t, "copy me", src)
}

// TestCopyTree tests recursive duplication
func TestCopyTree(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "tree", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/tree/sub", "leaf.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/tree/sub/leaf.txt", "leaf"))

	require.NoError(t, svc.Copy(testAlice, "/tree", "/tree2"))

	got, err := svc.ReadFile(testAlice, "/tree2/sub/leaf.txt")
	require.NoError(t, err)
	assert.Equal(t, "leaf", got)
}

// TestCopyExistingDestination tests that copy never overwrites
func TestCopyExistingDestination(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "a.txt", KindFile))
	require.NoError(t, svc.Create(testAlice, "/", "b.txt", KindFile))

	err := svc.Copy(testAlice, "/a.txt", "/b.txt")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindAlreadyExists, vfserr.KindOf(err))
}

// TestCopyIntoOwnSubtree tests that a directory cannot be copied into itself
func TestCopyIntoOwnSubtree(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "a", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/a", "f.txt", KindFile))

	err := svc.Copy(testAlice, "/a", "/a/b")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindValidation, vfserr.KindOf(err))

	err = svc.Copy(testAlice, "/a", "/a")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindValidation, vfserr.KindOf(err))

	// The rejection happens before any filesystem call, so the source is
	// untouched and no nested destination was created.
	entries, err := svc.List(testAlice, "/a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f.txt", entries[0].Name)
}

// TestMoveIntoOwnSubtree tests that a directory cannot be moved into itself
func TestMoveIntoOwnSubtree(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "a", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/a", "f.txt", KindFile))

	err := svc.Move(testAlice, "/a", "/a/b")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindValidation, vfserr.KindOf(err))

	got, err := svc.ReadFile(testAlice, "/a/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

// TestMetadata tests entry metadata
func TestMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "docs", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/docs", "m.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/docs/m.txt", "12345"))

	meta, err := svc.Metadata(testAlice, "/docs/m.txt")
	require.NoError(t, err)
	assert.Equal(t, "m.txt", meta.Name)
	assert.Equal(t, "/docs/m.txt", meta.Path)
	assert.Equal(t, KindFile, meta.Type)
	assert.Equal(t, int64(5), meta.Size)
	assert.False(t, meta.ModifiedAt.IsZero())
	assert.False(t, meta.CreatedAt.IsZero())

	meta, err = svc.Metadata(testAlice, "/docs")
	require.NoError(t, err)
	assert.Equal(t, KindFolder, meta.Type)

	meta, err = svc.Metadata(testAlice, "/")
	require.NoError(t, err)
	assert.Equal(t, "/", meta.Name)
}

// TestUpload tests binary-safe upload with overwrite
func TestUpload(t *testing.T) {
	svc, _ := newTestService(t)

	blob := []byte{0x00, 0xff, 0x10, 0x80}
	require.NoError(t, svc.Upload(testAlice, "/incoming", "blob.bin", blob))

	got, err := svc.ReadFileBytes(testAlice, "/incoming/blob.bin")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// Re-upload replaces.
	require.NoError(t, svc.Upload(testAlice, "/incoming", "blob.bin", []byte{0x01}))
	got, err = svc.ReadFileBytes(testAlice, "/incoming/blob.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)
}

// TestUserIsolation tests that one user's tree is invisible to another
func TestUserIsolation(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "secret.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/secret.txt", "alice only"))

	_, err := svc.ReadFile(testBob, "/secret.txt")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotFound, vfserr.KindOf(err))

	entries, err := svc.List(testBob, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestTraversalBlockedOnEveryOperation tests the sandbox guard across the
// operation set
func TestTraversalBlockedOnEveryOperation(t *testing.T) {
	svc, _ := newTestService(t)
	hostile := "/../" + string(testBob) + "/stolen.txt"

	ops := map[string]func() error{
		"list":     func() error { _, err := svc.List(testAlice, hostile); return err },
		"read":     func() error { _, err := svc.ReadFile(testAlice, hostile); return err },
		"write":    func() error { return svc.WriteFile(testAlice, hostile, "x") },
		"delete":   func() error { return svc.Delete(testAlice, hostile) },
		"rdelete":  func() error { return svc.DeleteRecursive(testAlice, hostile) },
		"move-src": func() error { return svc.Move(testAlice, hostile, "/ok") },
		"move-dst": func() error { return svc.Move(testAlice, "/ok", hostile) },
		"copy-src": func() error { return svc.Copy(testAlice, hostile, "/ok") },
		"metadata": func() error { _, err := svc.Metadata(testAlice, hostile); return err },
		"upload":   func() error { return svc.Upload(testAlice, hostile, "f.txt", nil) },
		"create":   func() error { return svc.Create(testAlice, hostile, "f.txt", KindFile) },
	}
	for name, op := range ops {
		err := op()
		require.Error(t, err, name)
		assert.Equal(t, vfserr.KindSecurity, vfserr.KindOf(err), name)
	}
}

// TestCopyAcrossUsers tests the sharing copy primitive
func TestCopyAcrossUsers(t *testing.T) {
	svc, notifier := newTestService(t)
	require.NoError(t, svc.Create(testAlice, "/", "shared", KindFolder))
	require.NoError(t, svc.Create(testAlice, "/shared", "doc.txt", KindFile))
	require.NoError(t, svc.WriteFile(testAlice, "/shared/doc.txt", "for bob"))

	require.NoError(t, svc.CopyAcrossUsers(testAlice, "/shared", testBob, "shared"))

	got, err := svc.ReadFile(testBob, "/shared/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "for bob", got)
	assert.True(t, notifier.has(testBob, "/"))

	// Source vanishing between share and accept surfaces as not-found.
	err = svc.CopyAcrossUsers(testAlice, "/gone", testBob, "gone")
	require.Error(t, err)
	assert.Equal(t, vfserr.KindNotFound, vfserr.KindOf(err))
}

// TestPhysicalLayout tests that files land under <root>/<userID>
func TestPhysicalLayout(t *testing.T) {
	root := t.TempDir()
	svc := NewService(NewSandbox(root), nil, nil)
	require.NoError(t, svc.ProvisionRoot(testAlice))
	require.NoError(t, svc.Create(testAlice, "/", "f.txt", KindFile))

	_, err := os.Stat(filepath.Join(root, string(testAlice), "f.txt"))
	require.NoError(t, err)
}

// TestManyEntriesSorted tests listing order with a larger directory
func TestManyEntriesSorted(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < 20; i++ {
		require.NoError(t, svc.Create(testAlice, "/", fmt.Sprintf("f%02d.txt", 19-i), KindFile))
	}
	entries, err := svc.List(testAlice, "/")
	require.NoError(t, err)
	require.Len(t, entries, 20)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Name, entries[i].Name)
	}
}
