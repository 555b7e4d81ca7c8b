package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileEntry is one profile in the session file
type fileEntry struct {
	SessionID string `yaml:"sessionId,omitempty"`
	User      string `yaml:"user,omitempty"`
}

type fileContents struct {
	Profiles map[string]fileEntry `yaml:"profiles"`
}

// FileStore keeps sessions in a YAML file, one entry per profile.
// Writes go through a temp file and rename so a crash never leaves half a file.
type FileStore struct {
	path    string
	profile string
	mu      sync.Mutex
}

// NewFileStore creates a store for profile backed by path.
func NewFileStore(path, profile string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session file path is required")
	}
	if profile == "" {
		profile = "default"
	}
	return &FileStore{path: filepath.Clean(path), profile: profile}, nil
}

// Path returns the session file location
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.read()
	if err != nil {
		return Record{}, err
	}
	entry := contents.Profiles[s.profile]
	user, err := decodeUser(entry.User)
	if err != nil {
		return Record{SessionID: entry.SessionID}, err
	}
	return Record{SessionID: entry.SessionID, User: user}, nil
}

// Save implements Store
func (s *FileStore) Save(ctx context.Context, rec Record) error {
	user, err := encodeUser(rec.User)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.read()
	if err != nil {
		// An unreadable file is replaced rather than blocking login.
		contents = fileContents{}
	}
	if contents.Profiles == nil {
		contents.Profiles = make(map[string]fileEntry)
	}
	if rec.Empty() {
		delete(contents.Profiles, s.profile)
	} else {
		contents.Profiles[s.profile] = fileEntry{SessionID: rec.SessionID, User: user}
	}
	return s.write(contents)
}

// Clear implements Store
func (s *FileStore) Clear(ctx context.Context) error {
	return s.Save(ctx, Record{})
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() (fileContents, error) {
	var contents fileContents
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contents, nil
		}
		return contents, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return fileContents{}, fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}
	return contents, nil
}

func (s *FileStore) write(contents fileContents) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := yaml.Marshal(&contents)
	if err != nil {
		return fmt.Errorf("failed to encode session file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to secure session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
