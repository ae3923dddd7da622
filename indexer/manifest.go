package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/tachyondb/tachyon/core"
)

// ManifestFileName is the catalog manifest inside the database root.
const ManifestFileName = "CATALOG.json"

const manifestVersion = 1

type manifestStream struct {
	ID        string            `json:"id"`
	Labels    map[string]string `json:"labels"`
	ValueType string            `json:"value_type"`
}

type manifest struct {
	Version int              `json:"version"`
	Streams []manifestStream `json:"streams"`
}

func (idx *Indexer) manifestPath() string {
	return filepath.Join(idx.dir, ManifestFileName)
}

// persistManifest writes the catalog to a temporary file and renames it into
// place, so a crash mid-write leaves the previous manifest intact. Caller
// holds the write lock.
func (idx *Indexer) persistManifest() error {
	m := manifest{Version: manifestVersion}
	for _, summary := range idx.snapshotLocked() {
		m.Streams = append(m.Streams, manifestStream{
			ID:        summary.ID.String(),
			Labels:    summary.Labels,
			ValueType: summary.ValueType.String(),
		})
	}

	path := idx.manifestPath()
	tempPath := path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary manifest: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temporary manifest: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// snapshotLocked returns the streams in local-id order so the manifest is
// stable across rewrites. Caller holds at least the read lock.
func (idx *Indexer) snapshotLocked() []StreamSummary {
	ids := make([]uint64, 0, len(idx.byLocalID))
	for id := range idx.byLocalID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	summaries := make([]StreamSummary, len(ids))
	for i, id := range ids {
		summaries[i] = idx.byLocalID[id].summary
	}
	return summaries
}

// loadManifest rebuilds the in-memory catalog, including posting lists, from
// the persisted manifest. A missing manifest means an empty catalog.
func (idx *Indexer) loadManifest() error {
	data, err := os.ReadFile(idx.manifestPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	for _, s := range m.Streams {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return fmt.Errorf("stream %q: bad id: %w", s.ID, err)
		}
		vt, err := core.ParseValueType(s.ValueType)
		if err != nil {
			return fmt.Errorf("stream %s: %w", s.ID, err)
		}
		idx.register(StreamSummary{ID: id, Labels: s.Labels, ValueType: vt})
	}
	return nil
}
