// Package resource loads rotation profiles from disk.
package resource

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

//go:embed profile.schema.json
var profileSchema []byte

const schemaURL = "profile.schema.json"

// ProfileLoader reads RotationCreator JSON files from a directory, validating
// each against the embedded schema before decoding.
type ProfileLoader struct {
	dir    string
	schema *jsonschema.Schema
	logger *zap.Logger
}

func NewProfileLoader(dir string, logger *zap.Logger) (*ProfileLoader, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(profileSchema)); err != nil {
		return nil, fmt.Errorf("resource: add schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("resource: compile schema: %w", err)
	}
	return &ProfileLoader{dir: dir, schema: s, logger: logger}, nil
}

func (l *ProfileLoader) Dir() string { return l.dir }

// Validate checks data against the profile schema.
func (l *ProfileLoader) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", rotation.ErrInvalidProfile, err)
	}
	if err := l.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", rotation.ErrInvalidProfile, err)
	}
	return nil
}

// Parse validates and decodes one profile document.
func (l *ProfileLoader) Parse(data []byte) (*rotation.Profile, error) {
	if err := l.Validate(data); err != nil {
		return nil, err
	}
	return rotation.ParseProfile(data)
}

// LoadFile reads one profile and stamps its path and modification time.
func (l *ProfileLoader) LoadFile(path string) (*rotation.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	p.FilePath = path
	if fi, err := os.Stat(path); err == nil {
		p.LastModified = fi.ModTime()
	}
	return p, nil
}

// LoadAll reads every *.json file in the directory, sorted by file name.
// Invalid files are skipped and reported in the joined error.
func (l *ProfileLoader) LoadAll() ([]*rotation.Profile, error) {
	paths, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []*rotation.Profile
	var errs []error
	for _, path := range paths {
		p, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping rotation profile", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

// Import loads every file and saves it into store. It returns how many
// profiles were saved.
func (l *ProfileLoader) Import(ctx context.Context, store *rotation.Store) (int, error) {
	profiles, loadErr := l.LoadAll()
	n := 0
	for _, p := range profiles {
		if err := store.Save(ctx, p); err != nil {
			return n, fmt.Errorf("resource: save %q: %w", p.Name, err)
		}
		n++
	}
	if n > 0 {
		l.logger.Info("rotation profiles imported", zap.Int("count", n), zap.String("dir", l.dir))
	}
	return n, loadErr
}
