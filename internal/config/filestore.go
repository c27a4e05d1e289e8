package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/facebookgo/atomicfile"
	"gopkg.in/yaml.v3"

	"github.com/toolgate/toolgate/internal/model"
)

// SecretsFileName is the name of the secrets file inside the data directory.
const SecretsFileName = "secrets.yaml"

const secretsFileVersion = 1

// secretsFile is the on-disk layout of the secrets file.
type secretsFile struct {
	Version int                 `yaml:"version"`
	Admin   *model.AdminAccount `yaml:"admin,omitempty"`
	Tokens  []model.APIToken    `yaml:"tokens"`
}

// FileStore is a SecretStore backed by a single YAML file. Every Save writes
// a temporary file next to the target and renames it into place, so a crash
// mid-write leaves the previous file intact.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore rooted at dataDir, creating the directory
// if needed. The secrets file itself is created on the first Save.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dataDir, SecretsFileName)}, nil
}

// Path returns the location of the secrets file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the secrets file. A missing file is a first run and yields a nil
// account; an unreadable or invalid file yields ErrStorageCorrupt.
func (s *FileStore) Load(ctx context.Context) (*model.AdminAccount, []model.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read secrets file: %w", err)
	}

	var f secretsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", ErrStorageCorrupt, s.path, err)
	}
	if f.Version != secretsFileVersion {
		return nil, nil, fmt.Errorf("%w: unsupported secrets file version %d", ErrStorageCorrupt, f.Version)
	}
	if err := validateSecrets(f.Admin, f.Tokens); err != nil {
		return nil, nil, err
	}
	return f.Admin, f.Tokens, nil
}

// Save atomically replaces the secrets file with the given state.
func (s *FileStore) Save(ctx context.Context, account *model.AdminAccount, tokens []model.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokens == nil {
		tokens = []model.APIToken{}
	}
	data, err := yaml.Marshal(secretsFile{
		Version: secretsFileVersion,
		Admin:   account,
		Tokens:  tokens,
	})
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}

	f, err := atomicfile.New(s.path, 0600)
	if err != nil {
		return fmt.Errorf("create temp secrets file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Abort() //nolint:errcheck
		return fmt.Errorf("write secrets file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Abort() //nolint:errcheck
		return fmt.Errorf("sync secrets file: %w", err)
	}
	if err := f.Close(); err != nil {
		// Close renames; a failed rename leaves the temp file behind.
		os.Remove(f.Name())
		return fmt.Errorf("replace secrets file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error {
	return nil
}
