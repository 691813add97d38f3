package configfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blackmichael/mastodon-bridge/internal/domain"
)

// file mirrors the on-disk layout:
//
//	apps:
//	  example.social: {client_id: ..., client_secret: ...}
//	users:
//	  did:plc:abc: {mastodon_handle: ..., access_token: ..., user_id: ..., pds: ...}
type file struct {
	Apps  map[string]app  `yaml:"apps"`
	Users map[string]user `yaml:"users"`
}

// app holds OAuth client credentials; only the linking tool uses them.
type app struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type user struct {
	MastodonHandle string `yaml:"mastodon_handle"`
	AccessToken    string `yaml:"access_token"`
	UserID         string `yaml:"user_id"`
	PDS            string `yaml:"pds"`
}

// Store implements domain.ConfigLoader on top of a YAML file. The file is
// re-read on every call so edits take effect without a restart.
type Store struct {
	path string
}

// NewStore returns a Store reading from path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// LoadConfig reads and parses the file. A missing file is an empty directory.
func (s *Store) LoadConfig(_ context.Context) (*domain.Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &domain.Config{Users: map[string]domain.UserRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user config %s: %w", s.path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse user config %s: %w", s.path, err)
	}

	cfg := &domain.Config{Users: make(map[string]domain.UserRecord, len(f.Users))}
	for subject, u := range f.Users {
		cfg.Users[subject] = domain.UserRecord{
			SubjectID:      subject,
			MastodonHandle: u.MastodonHandle,
			AccessToken:    u.AccessToken,
			PDS:            u.PDS,
			MastodonUserID: u.UserID,
		}
	}
	return cfg, nil
}
