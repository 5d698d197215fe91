package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a process-local backend. Documents are stored as encoded JSON so callers
// never share maps with the backend.
type Memory struct {
	mu       sync.Mutex
	tracking []byte
	mint     []byte
	saves    int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) LoadTracking(ctx context.Context) (*TrackingDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := NewTrackingDocument()
	if m.tracking != nil {
		if err := json.Unmarshal(m.tracking, doc); err != nil {
			return NewTrackingDocument(), err
		}
		doc.normalize()
	}
	return doc, nil
}

func (m *Memory) SaveTracking(ctx context.Context, doc *TrackingDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = data
	m.saves++
	return nil
}

func (m *Memory) LoadMint(ctx context.Context) (*MintDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := NewMintDocument()
	if m.mint != nil {
		if err := json.Unmarshal(m.mint, doc); err != nil {
			return NewMintDocument(), err
		}
		doc.normalize()
	}
	return doc, nil
}

func (m *Memory) SaveMint(ctx context.Context, doc *MintDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mint = data
	m.saves++
	return nil
}

// Saves returns how many times a document was saved.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error {
	return nil
}
