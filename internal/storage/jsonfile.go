package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSONFiles keeps each document in its own JSON file.
type JSONFiles struct {
	trackingPath string
	mintPath     string
}

// NewJSONFiles creates a file backend, creating parent directories as needed.
func NewJSONFiles(trackingPath, mintPath string) (*JSONFiles, error) {
	for _, p := range []string{trackingPath, mintPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &JSONFiles{trackingPath: trackingPath, mintPath: mintPath}, nil
}

func (j *JSONFiles) LoadTracking(ctx context.Context) (*TrackingDocument, error) {
	doc := NewTrackingDocument()
	if err := readJSON(j.trackingPath, doc); err != nil {
		return NewTrackingDocument(), err
	}
	doc.normalize()
	return doc, nil
}

func (j *JSONFiles) SaveTracking(ctx context.Context, doc *TrackingDocument) error {
	return writeJSON(j.trackingPath, doc)
}

func (j *JSONFiles) LoadMint(ctx context.Context) (*MintDocument, error) {
	doc := NewMintDocument()
	if err := readJSON(j.mintPath, doc); err != nil {
		return NewMintDocument(), err
	}
	doc.normalize()
	return doc, nil
}

func (j *JSONFiles) SaveMint(ctx context.Context, doc *MintDocument) error {
	return writeJSON(j.mintPath, doc)
}

func (j *JSONFiles) Close() error {
	return nil
}

// readJSON leaves v untouched when the file does not exist or is empty.
// An undecodable file is moved aside so the next save does not overwrite it.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			return fmt.Errorf("%w: %s: %v (move aside: %v)", ErrCorrupt, path, err, rerr)
		}
		return fmt.Errorf("%w: %s moved to %s: %v", ErrCorrupt, path, aside, err)
	}
	return nil
}

// writeJSON replaces path atomically: temp file in the same directory, fsync, rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
