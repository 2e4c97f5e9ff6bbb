// Package user owns user accounts: registration, credential verification,
// and the on-disk users file.
package user

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

// User is one registered account. The password hash never leaves this
// package.
type User struct {
	ID           id.UserID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Info is the public projection of a user, served to the sharing UI.
type Info struct {
	ID       id.UserID `json:"id"`
	Username string    `json:"username"`
}

// RootProvisioner creates a user's VFS root at signup time.
type RootProvisioner interface {
	ProvisionRoot(userID id.UserID) error
}

// Store keeps accounts in memory and mirrors them to a JSON file, the same
// shape older deployments kept under data/users.json.
type Store struct {
	mu       sync.RWMutex
	byName   map[string]*User
	byID     map[id.UserID]*User
	filePath string

	provisioner RootProvisioner
	logger      *zap.Logger
}

// NewStore loads (or creates) the users file at filePath.
func NewStore(filePath string, provisioner RootProvisioner, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		byName:      make(map[string]*User),
		byID:        make(map[id.UserID]*User),
		filePath:    filePath,
		provisioner: provisioner,
		logger:      logger,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Register creates an account and provisions its VFS root. The username must
// be unique; the collision is reported distinctly (signup is not subject to
// the uniform-auth-failure rule, which only guards login).
func (s *Store) Register(username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, vfserr.Validation("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, vfserr.Internal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return nil, vfserr.AlreadyExists("username already taken")
	}

	u := &User{
		ID:           id.NewUserID(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	s.byName[username] = u
	s.byID[u.ID] = u

	if err := s.persistLocked(); err != nil {
		delete(s.byName, username)
		delete(s.byID, u.ID)
		return nil, err
	}

	if s.provisioner != nil {
		if err := s.provisioner.ProvisionRoot(u.ID); err != nil {
			s.logger.Error("failed to provision user root",
				zap.String("user", u.ID.String()), zap.Error(err))
			return nil, err
		}
	}

	s.logger.Info("user registered", zap.String("user", u.ID.String()))
	return u, nil
}

// Verify checks credentials and returns the matching user. Unknown usernames
// and wrong passwords fail identically.
func (s *Store) Verify(username, password string) (*User, error) {
	s.mu.RLock()
	u, ok := s.byName[username]
	s.mu.RUnlock()

	if !ok {
		// Burn a comparison anyway so the two failure modes cost the same.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, vfserr.Auth
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, vfserr.Auth
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Store) Get(userID id.UserID) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	return u, ok
}

// List returns the public projection of every account, for the share dialog.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.byID))
	for _, u := range s.byID {
		infos = append(infos, Info{ID: u.ID, Username: u.Username})
	}
	return infos
}

// dummyHash is a bcrypt hash of an empty string, used to equalize timing on
// unknown-user login attempts.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(""), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
			return vfserr.Internal(err)
		}
		return nil
	}
	if err != nil {
		return vfserr.Internal(err)
	}

	var users []*User
	if err := json.Unmarshal(data, &users); err != nil {
		return vfserr.Internal(err)
	}
	for _, u := range users {
		s.byName[u.Username] = u
		s.byID[u.ID] = u
	}
	return nil
}

func (s *Store) persistLocked() error {
	users := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, u)
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return vfserr.Internal(err)
	}
	if err := os.WriteFile(s.filePath, data, 0o600); err != nil {
		return vfserr.Internal(err)
	}
	return nil
}
