// Package storage keeps one directory per run holding the engine outputs and
// a metadata.json describing how the run was configured and how it ended.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ionmd/ionmd/internal/config"
	"github.com/ionmd/ionmd/internal/palette"
	"github.com/ionmd/ionmd/internal/sim"
)

const metadataFile = "metadata.json"

var ErrRunNotFound = errors.New("storage: run not found")

// StatusAbandoned marks a run whose process stopped waiting and exited
// before the engine reached a terminal status.
const StatusAbandoned = "ABANDONED"

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir is the directory holding run id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

type RunMetadata struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Elapsed   float64           `json:"elapsed_seconds"`
	Params    config.Params     `json:"params"`
	Particles []sim.Particle    `json:"particles"`
	Palette   []string          `json:"palette,omitempty"`
	Files     map[string]string `json:"files"`
}

// Colours resolves the palette for drawing this run: override when given,
// else the palette the run was configured with, else the default.
func (m *RunMetadata) Colours(override []string) (palette.Palette, error) {
	if len(override) > 0 {
		return palette.ParseHex(override)
	}
	return palette.ParseHex(m.Palette)
}

// Abandon records that nobody waited for the run to end.
func (m *RunMetadata) Abandon(reason error) {
	m.Status = StatusAbandoned
	m.Error = fmt.Sprintf("abandoned after timeout: %v", reason)
}

// Species lists the distinct species in particle order.
func (m *RunMetadata) Species() []sim.Species {
	var out []sim.Species
	seen := map[sim.Species]bool{}
	for _, p := range m.Particles {
		if !seen[p.Species] {
			seen[p.Species] = true
			out = append(out, p.Species)
		}
	}
	return out
}

// Path resolves a file recorded in Files against the run directory.
func (s *Store) Path(m *RunMetadata, key string) (string, bool) {
	name, ok := m.Files[key]
	if !ok || name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return name, true
	}
	return filepath.Join(s.Dir(m.ID), name), true
}

// Create makes a fresh run directory named after name and the current time
// and returns metadata for it in the IDLE state.
func (s *Store) Create(name string) (*RunMetadata, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	name = sanitize(name)
	now := time.Now()
	base := fmt.Sprintf("%s_%s", name, now.Format("20060102-150405"))

	id := base
	for i := 1; ; i++ {
		err := os.Mkdir(s.Dir(id), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, err
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}

	return &RunMetadata{
		ID:        id,
		Name:      name,
		Timestamp: now,
		Status:    sim.Idle.String(),
		Files:     map[string]string{},
	}, nil
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "run"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Save writes meta to its run directory, replacing any earlier metadata.
func (s *Store) Save(meta *RunMetadata) error {
	if meta.ID == "" {
		return fmt.Errorf("storage: metadata has no run id")
	}
	if err := os.MkdirAll(s.Dir(meta.ID), 0755); err != nil {
		return err
	}

	metaFile, err := os.Create(filepath.Join(s.Dir(meta.ID), metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return err
	}
	return metaFile.Close()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

// Latest returns the most recent run.
func (s *Store) Latest() (*RunMetadata, error) {
	runs, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: store %s is empty", ErrRunNotFound, s.baseDir)
	}
	return &runs[len(runs)-1], nil
}
