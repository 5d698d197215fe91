package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCorrupt       = errors.New("corrupt state")
)

// Backend persists the tracking and mint documents. Saves are whole-document rewrites.
// A backend with nothing persisted yet returns empty documents, not an error.
type Backend interface {
	LoadTracking(ctx context.Context) (*TrackingDocument, error)
	SaveTracking(ctx context.Context, doc *TrackingDocument) error
	LoadMint(ctx context.Context) (*MintDocument, error)
	SaveMint(ctx context.Context, doc *MintDocument) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string // json | sqlite | redis | memory

	DataDir string
	DBPath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case "json", "":
		return NewJSONFiles(
			filepath.Join(opts.DataDir, "wallet_tracking_data.json"),
			filepath.Join(opts.DataDir, "runes_mint_data.json"),
		)
	case "sqlite":
		return NewSQLite(opts.DBPath)
	case "redis":
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", ErrInvalidInput, opts.Driver)
}
