package sources

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/catkin/xylem/internal/version"
	"github.com/catkin/xylem/pkg/errors"
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/rules"
)

// SnapshotFileName is the name of the persisted database inside the
// cache directory.
const SnapshotFileName = "rules.yaml"

// Snapshot is the on-disk form of a merged rules database.
type Snapshot struct {
	Version    string                 `yaml:"version"`
	BuiltAt    time.Time              `yaml:"built_at"`
	Sources    []string               `yaml:"sources"`
	Rules      map[string]interface{} `yaml:"rules"`
	Provenance []ProvenanceEntry      `yaml:"provenance"`
}

// ProvenanceEntry records which source contributed the winning rule
// for one (key, installer) pair.
type ProvenanceEntry struct {
	Key       string `yaml:"key"`
	Installer string `yaml:"installer"`
	Source    string `yaml:"source"`
}

// NewSnapshot captures a database for persistence.
func NewSnapshot(db *rules.Database, sourcePaths []string) *Snapshot {
	snap := &Snapshot{
		Version: version.Version,
		BuiltAt: time.Now().UTC(),
		Sources: append([]string(nil), sourcePaths...),
		Rules:   make(map[string]interface{}, len(db.Keys)),
	}
	for key, osDict := range db.Keys {
		snap.Rules[key] = osDict.ToRaw()
	}
	for pk, source := range db.Provenance {
		snap.Provenance = append(snap.Provenance, ProvenanceEntry{
			Key:       pk.Key,
			Installer: pk.Installer,
			Source:    source,
		})
	}
	sort.Slice(snap.Provenance, func(i, j int) bool {
		a, b := snap.Provenance[i], snap.Provenance[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Installer < b.Installer
	})
	return snap
}

// Database reconstructs the merged database from the snapshot.
func (s *Snapshot) Database() (*rules.Database, error) {
	doc, errs := rules.Expand(s.Rules, "snapshot")
	if len(errs) > 0 {
		return nil, errors.Wrapf(errs[0], errors.ErrCacheRead,
			"snapshot contains invalid rules (%d problems)", len(errs))
	}
	db := rules.NewDatabase()
	db.Keys = doc.Keys
	for _, entry := range s.Provenance {
		db.Provenance[rules.ProvenanceKey{
			Key:       entry.Key,
			Installer: entry.Installer,
		}] = entry.Source
	}
	return db, nil
}

// Save writes the snapshot under dir using a temp file and an atomic
// rename, so concurrent readers never observe a partially written
// database.
func (s *Snapshot) Save(dir string) error {
	logger := logging.GetLogger("sources.snapshot")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrCacheWrite,
			"cannot create cache directory %q", dir)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCacheWrite, "cannot encode snapshot")
	}

	tmp, err := os.CreateTemp(dir, SnapshotFileName+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, errors.ErrCacheWrite,
			"cannot create temp file in %q", dir)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrCacheWrite,
			"cannot write snapshot to %q", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrCacheWrite,
			"cannot close snapshot file %q", tmpPath)
	}

	target := filepath.Join(dir, SnapshotFileName)
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrCacheWrite,
			"cannot move snapshot into place at %q", target)
	}

	logger.Debug().
		Str("path", target).
		Int("keys", len(s.Rules)).
		Msg("Saved snapshot")
	return nil
}

// LoadSnapshot reads a snapshot from the cache directory.
func LoadSnapshot(dir string) (*Snapshot, error) {
	path := filepath.Join(dir, SnapshotFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCacheRead,
			"cannot read snapshot %q; run 'xylem update' first", path)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCacheRead,
			"cannot decode snapshot %q", path)
	}
	return &snap, nil
}

// LoadDatabase is a convenience for the read path: snapshot file to
// ready-to-query database.
func LoadDatabase(dir string) (*rules.Database, error) {
	snap, err := LoadSnapshot(dir)
	if err != nil {
		return nil, err
	}
	return snap.Database()
}
