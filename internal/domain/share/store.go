// Package share owns share records and the accept/deny workflow between
// user sandboxes.
package share

import (
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
	"github.com/crusadeos/backend/internal/vfs"
)

// Record is one sharing proposal. A record in neither terminal state is
// pending and visible only to the target user. Terminal transitions happen
// at most once.
type Record struct {
	ID           id.ShareID `json:"id"`
	SourceUserID id.UserID  `json:"sourceUserId"`
	TargetUserID id.UserID  `json:"targetUserId"`
	Path         string     `json:"path"`
	Name         string     `json:"name"`
	Accepted     bool       `json:"accepted"`
	Denied       bool       `json:"denied"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Copier performs the cross-user recursive copy on acceptance. Satisfied by
// the VFS service; the share store itself never touches the filesystem.
type Copier interface {
	CopyAcrossUsers(srcUser id.UserID, srcVirtual string, dstUser id.UserID, dstName string) error
}

// Store owns all share records.
type Store struct {
	mu      sync.Mutex
	records []*Record

	copier Copier
	logger *zap.Logger
}

// NewStore creates a share store that copies through the given copier.
func NewStore(copier Copier, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{copier: copier, logger: logger}
}

// Share appends a pending record. Sharing is a proposal: no filesystem
// mutation happens until the target accepts. The record names a snapshot at
// share time; the source may mutate or delete the path before acceptance.
func (s *Store) Share(owner id.UserID, virtualPath string, target id.UserID) (*Record, error) {
	if owner == target {
		return nil, vfserr.Validation("cannot share with yourself")
	}
	norm, err := vfs.Normalize(virtualPath)
	if err != nil {
		return nil, err
	}
	if norm == "/" {
		return nil, vfserr.Validation("cannot share the root directory")
	}

	rec := &Record{
		ID:           id.NewShareID(),
		SourceUserID: owner,
		TargetUserID: target,
		Path:         norm,
		Name:         path.Base(norm),
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	s.logger.Info("share proposed",
		zap.String("from", owner.String()),
		zap.String("to", target.String()),
		zap.String("name", rec.Name),
	)
	out := *rec
	return &out, nil
}

// ListPending returns the pending records targeting a user.
func (s *Store) ListPending(userID id.UserID) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]Record, 0)
	for _, rec := range s.records {
		if rec.TargetUserID == userID && !rec.Accepted && !rec.Denied {
			pending = append(pending, *rec)
		}
	}
	return pending
}

// Accept locates the matching pending record, copies the shared entry from
// the source user's sandbox into the accepting user's root under the
// record's display name, then marks the record accepted. The copy reads the
// live source path: a source deleted since sharing fails NotFound, a mutated
// one copies whatever currently exists.
func (s *Store) Accept(userID id.UserID, shareName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findPendingLocked(userID, shareName)
	if rec == nil {
		return vfserr.NotFound("no pending share with that name")
	}

	if err := s.copier.CopyAcrossUsers(rec.SourceUserID, rec.Path, userID, rec.Name); err != nil {
		return err
	}
	rec.Accepted = true

	s.logger.Info("share accepted",
		zap.String("user", userID.String()),
		zap.String("name", rec.Name),
	)
	return nil
}

// Deny marks the matching pending record denied. No filesystem effect.
func (s *Store) Deny(userID id.UserID, shareName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findPendingLocked(userID, shareName)
	if rec == nil {
		return vfserr.NotFound("no pending share with that name")
	}
	rec.Denied = true

	s.logger.Info("share denied",
		zap.String("user", userID.String()),
		zap.String("name", rec.Name),
	)
	return nil
}

// findPendingLocked returns the oldest pending record for (target, name).
func (s *Store) findPendingLocked(userID id.UserID, shareName string) *Record {
	for _, rec := range s.records {
		if rec.TargetUserID == userID && rec.Name == shareName && !rec.Accepted && !rec.Denied {
			return rec
		}
	}
	return nil
}
