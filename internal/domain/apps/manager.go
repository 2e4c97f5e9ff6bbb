// Package apps manages the installed-apps manifest. Apps are installed from
// .pakapp package files living in a user's VFS; the package only references
// a component the desktop shell already knows how to render.
package apps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

// App describes one desktop application.
type App struct {
	AppID         string `json:"appId"`
	Title         string `json:"title"`
	ComponentName string `json:"componentName"`
	Description   string `json:"description"`
}

// Installed is a catalog app plus its install time.
type Installed struct {
	App
	InstalledAt time.Time `json:"installedAt"`
}

// Catalog lists the components the desktop shell can render. A .pakapp may
// only install an app that appears here.
var Catalog = []App{
	{AppID: "hello-world-app", Title: "Hello World", ComponentName: "HelloWorldApp", Description: "A simple greeting application."},
	{AppID: "file-explorer-app", Title: "File Explorer", ComponentName: "FileExplorer", Description: "Browse and manage your files."},
	{AppID: "text-editor-app", Title: "Text Editor", ComponentName: "TextEditor", Description: "Edit text files."},
	{AppID: "terminal-app", Title: "Terminal", ComponentName: "TerminalApp", Description: "Access the command line."},
}

// PackageReader reads a package file out of a user's sandbox.
type PackageReader interface {
	ReadFile(userID id.UserID, virtual string) (string, error)
}

// Manager owns the installed-apps manifest, mirrored to a JSON file.
type Manager struct {
	mu        sync.Mutex
	installed []Installed
	filePath  string

	reader PackageReader
	logger *zap.Logger
}

// NewManager loads (or creates) the manifest at filePath.
func NewManager(filePath string, reader PackageReader, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{filePath: filePath, reader: reader, logger: logger}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the installed apps.
func (m *Manager) List() []Installed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Installed, len(m.installed))
	copy(out, m.installed)
	return out
}

// Install reads a .pakapp manifest from the caller's VFS, validates it
// against the catalog, and records the app as installed.
func (m *Manager) Install(userID id.UserID, packagePath string) (*Installed, error) {
	content, err := m.reader.ReadFile(userID, packagePath)
	if err != nil {
		return nil, err
	}

	var pkg App
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil, vfserr.Validation("invalid .pakapp file: must be valid JSON")
	}
	if pkg.AppID == "" || pkg.Title == "" || pkg.ComponentName == "" {
		return nil, vfserr.Validation("invalid .pakapp: missing appId, title, or componentName")
	}

	catalogApp := lookupCatalog(pkg.AppID, pkg.ComponentName)
	if catalogApp == nil {
		return nil, vfserr.Validation("package does not match a known application")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.installed {
		if inst.AppID == pkg.AppID {
			return nil, vfserr.AlreadyExists("app is already installed")
		}
	}

	inst := Installed{App: *catalogApp, InstalledAt: time.Now()}
	m.installed = append(m.installed, inst)
	if err := m.persistLocked(); err != nil {
		m.installed = m.installed[:len(m.installed)-1]
		return nil, err
	}

	m.logger.Info("app installed", zap.String("app", inst.AppID))
	return &inst, nil
}

// Uninstall removes an app from the manifest.
func (m *Manager) Uninstall(appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, inst := range m.installed {
		if inst.AppID == appID {
			m.installed = append(m.installed[:i], m.installed[i+1:]...)
			if err := m.persistLocked(); err != nil {
				return err
			}
			m.logger.Info("app uninstalled", zap.String("app", appID))
			return nil
		}
	}
	return vfserr.NotFound("app not found in installed apps")
}

func lookupCatalog(appID, componentName string) *App {
	for i := range Catalog {
		if Catalog[i].AppID == appID && Catalog[i].ComponentName == componentName {
			return &Catalog[i]
		}
	}
	return nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
			return vfserr.Internal(err)
		}
		return nil
	}
	if err != nil {
		return vfserr.Internal(err)
	}
	if err := json.Unmarshal(data, &m.installed); err != nil {
		return vfserr.Internal(err)
	}
	return nil
}

func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.installed, "", "  ")
	if err != nil {
		return vfserr.Internal(err)
	}
	if err := os.WriteFile(m.filePath, data, 0o644); err != nil {
		return vfserr.Internal(err)
	}
	return nil
}
