// Package catalog implements the installable-addon catalog use case.
// Descriptors are plain YAML files in a local directory, loaded once at
// startup; the catalog is advisory and never blocks an install.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/alcove-sh/alcove/internal/domain"
)

// descriptorFile is the on-disk shape of one catalog entry.
type descriptorFile struct {
	Name        string `yaml:"name"`
	Image       string `yaml:"image"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Port        int    `yaml:"port"`
}

// Service implements the CatalogReader interface.
type Service struct {
	entries []domain.AvailableAddon
	byImage map[string]domain.AvailableAddon
	byRepo  map[string]domain.AvailableAddon
	log     *log.Logger
}

// NewService scans dir for *.yml and *.yaml descriptors and keeps the valid
// ones as the process-lifetime snapshot. Malformed descriptors are skipped
// with a warning; a missing or empty directory yields an empty catalog.
func NewService(dir string, logger *log.Logger) *Service {
	s := &Service{
		byImage: make(map[string]domain.AvailableAddon),
		byRepo:  make(map[string]domain.AvailableAddon),
		log:     logger.With("component", "catalog"),
	}
	s.load(dir)
	return s
}

func (s *Service) load(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn("Catalog directory unavailable, catalog is empty", "dir", dir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		descriptor, err := readDescriptor(path)
		if err != nil {
			s.log.Warn("Skipping malformed catalog entry", "file", entry.Name(), "error", err)
			continue
		}

		s.entries = append(s.entries, descriptor)
		s.byImage[descriptor.Image] = descriptor
		s.byRepo[domain.ImageRepository(descriptor.Image)] = descriptor
	}

	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].Name < s.entries[j].Name
	})

	s.log.Info("Catalog loaded", "dir", dir, "addons", len(s.entries))
}

func readDescriptor(path string) (domain.AvailableAddon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AvailableAddon{}, err
	}

	var file descriptorFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return domain.AvailableAddon{}, fmt.Errorf("decode: %w", err)
	}

	if strings.TrimSpace(file.Name) == "" {
		return domain.AvailableAddon{}, fmt.Errorf("missing name")
	}
	if strings.TrimSpace(file.Image) == "" {
		return domain.AvailableAddon{}, fmt.Errorf("missing image")
	}
	if file.Port < 0 || file.Port > 65535 {
		return domain.AvailableAddon{}, fmt.Errorf("port %d out of range", file.Port)
	}
	if file.Version != "" {
		if _, err := semver.NewVersion(file.Version); err != nil {
			return domain.AvailableAddon{}, fmt.Errorf("version %q: %w", file.Version, err)
		}
	}

	return domain.AvailableAddon{
		Name:         file.Name,
		Image:        file.Image,
		Description:  file.Description,
		Version:      file.Version,
		InternalPort: file.Port,
	}, nil
}

// Available returns a copy of the catalog snapshot.
func (s *Service) Available(ctx context.Context) ([]domain.AvailableAddon, error) {
	snapshot := make([]domain.AvailableAddon, len(s.entries))
	copy(snapshot, s.entries)
	return snapshot, nil
}

// Find resolves an image reference to its catalog descriptor. Exact matches
// win; otherwise the repository is compared ignoring the tag.
func (s *Service) Find(image string) (domain.AvailableAddon, bool) {
	if descriptor, ok := s.byImage[image]; ok {
		return descriptor, true
	}
	descriptor, ok := s.byRepo[domain.ImageRepository(image)]
	return descriptor, ok
}
