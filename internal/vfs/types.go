package vfs

import (
	"time"

	"github.com/crusadeos/backend/internal/shared/id"
)

// Entry kinds as exposed on the wire.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Entry is a single listing item. Entries are derived on demand from the
// physical filesystem and never persisted.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size *int64 `json:"size,omitempty"`
}

// Metadata describes a single file or folder.
type Metadata struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Notifier receives change notifications for a user's directory. Mutating
// operations report the affected parent directory path(s).
type Notifier interface {
	Notify(userID id.UserID, dirPath string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(id.UserID, string) {}
