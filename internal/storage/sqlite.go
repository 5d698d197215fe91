package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores both documents in normalized tables.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database and creates the schema.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tracked_wallets (
			scope TEXT NOT NULL,
			address TEXT NOT NULL,
			name TEXT NOT NULL,
			track_mint INTEGER NOT NULL,
			track_buy INTEGER NOT NULL,
			track_sell INTEGER NOT NULL,
			PRIMARY KEY (scope, address)
		)`,

		`CREATE TABLE IF NOT EXISTS output_channels (
			scope TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS transaction_history (
			scope TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			wallet_address TEXT NOT NULL,
			tx_id TEXT NOT NULL,
			PRIMARY KEY (scope, channel_id, wallet_address, tx_id)
		)`,

		`CREATE TABLE IF NOT EXISTS mint_channels (
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			PRIMARY KEY (guild_id, channel_id)
		)`,

		`CREATE TABLE IF NOT EXISTS mint_progress (
			guild_id TEXT NOT NULL,
			token_id TEXT NOT NULL,
			last_sent_percentage REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, token_id)
		)`,

		`CREATE TABLE IF NOT EXISTS mint_sent (
			guild_id TEXT NOT NULL,
			token_id TEXT NOT NULL,
			threshold TEXT NOT NULL,
			PRIMARY KEY (guild_id, token_id, threshold)
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Tracking ---

func (s *SQLite) LoadTracking(ctx context.Context) (*TrackingDocument, error) {
	doc := NewTrackingDocument()

	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, address, name, track_mint, track_buy, track_sell FROM tracked_wallets`,
	)
	if err != nil {
		return doc, fmt.Errorf("query wallets: %w", err)
	}
	for rows.Next() {
		var scope, address string
		var w WalletConfig
		if err := rows.Scan(&scope, &address, &w.Name, &w.TrackMint, &w.TrackBuy, &w.TrackSell); err != nil {
			rows.Close()
			return NewTrackingDocument(), err
		}
		if doc.TrackedWallets[scope] == nil {
			doc.TrackedWallets[scope] = make(map[string]WalletConfig)
		}
		doc.TrackedWallets[scope][address] = w
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return NewTrackingDocument(), err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT scope, channel_id FROM output_channels`)
	if err != nil {
		return NewTrackingDocument(), fmt.Errorf("query output channels: %w", err)
	}
	for rows.Next() {
		var scope, channel string
		if err := rows.Scan(&scope, &channel); err != nil {
			rows.Close()
			return NewTrackingDocument(), err
		}
		doc.OutputChannels[scope] = ChannelID(channel)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return NewTrackingDocument(), err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT scope, channel_id, wallet_address, tx_id FROM transaction_history
		 ORDER BY scope, channel_id, wallet_address, tx_id`,
	)
	if err != nil {
		return NewTrackingDocument(), fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var scope, channel, wallet, txID string
		if err := rows.Scan(&scope, &channel, &wallet, &txID); err != nil {
			return NewTrackingDocument(), err
		}
		if doc.TransactionHistory[scope] == nil {
			doc.TransactionHistory[scope] = make(map[string]map[string][]string)
		}
		if doc.TransactionHistory[scope][channel] == nil {
			doc.TransactionHistory[scope][channel] = make(map[string][]string)
		}
		doc.TransactionHistory[scope][channel][wallet] = append(doc.TransactionHistory[scope][channel][wallet], txID)
	}

	return doc, rows.Err()
}

// SaveTracking rewrites wallets and output channels. History is append-only, so it is
// merged with INSERT OR IGNORE instead of being deleted first.
func (s *SQLite) SaveTracking(ctx context.Context, doc *TrackingDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tracked_wallets"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM output_channels"); err != nil {
		return err
	}

	for scope, wallets := range doc.TrackedWallets {
		for address, w := range wallets {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO tracked_wallets (scope, address, name, track_mint, track_buy, track_sell)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				scope, address, w.Name, int(w.TrackMint), int(w.TrackBuy), int(w.TrackSell),
			)
			if err != nil {
				return fmt.Errorf("insert wallet: %w", err)
			}
		}
	}

	for scope, channel := range doc.OutputChannels {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO output_channels (scope, channel_id) VALUES (?, ?)",
			scope, string(channel),
		)
		if err != nil {
			return fmt.Errorf("insert output channel: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO transaction_history (scope, channel_id, wallet_address, tx_id)
		 VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for scope, channels := range doc.TransactionHistory {
		for channel, wallets := range channels {
			for wallet, ids := range wallets {
				for _, id := range ids {
					if _, err := stmt.ExecContext(ctx, scope, channel, wallet, id); err != nil {
						return fmt.Errorf("insert history: %w", err)
					}
				}
			}
		}
	}

	return tx.Commit()
}

// --- Mint ---

func (s *SQLite) LoadMint(ctx context.Context) (*MintDocument, error) {
	doc := NewMintDocument()

	rows, err := s.db.QueryContext(ctx,
		"SELECT guild_id, channel_id FROM mint_channels ORDER BY guild_id, channel_id",
	)
	if err != nil {
		return doc, fmt.Errorf("query mint channels: %w", err)
	}
	for rows.Next() {
		var guild, channel string
		if err := rows.Scan(&guild, &channel); err != nil {
			rows.Close()
			return NewMintDocument(), err
		}
		doc.Channels[guild] = append(doc.Channels[guild], channel)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return NewMintDocument(), err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT guild_id, token_id, last_sent_percentage FROM mint_progress")
	if err != nil {
		return NewMintDocument(), fmt.Errorf("query mint progress: %w", err)
	}
	for rows.Next() {
		var guild, token string
		var last float64
		if err := rows.Scan(&guild, &token, &last); err != nil {
			rows.Close()
			return NewMintDocument(), err
		}
		p := mintProgress(doc, guild, token)
		p.LastSentPercentage = last
		doc.Progress[guild][token] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return NewMintDocument(), err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT guild_id, token_id, threshold FROM mint_sent")
	if err != nil {
		return NewMintDocument(), fmt.Errorf("query mint sent: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var guild, token, threshold string
		if err := rows.Scan(&guild, &token, &threshold); err != nil {
			return NewMintDocument(), err
		}
		p := mintProgress(doc, guild, token)
		p.Sent[threshold] = true
		doc.Progress[guild][token] = p
	}

	return doc, rows.Err()
}

func mintProgress(doc *MintDocument, guild, token string) MintProgress {
	if doc.Progress[guild] == nil {
		doc.Progress[guild] = make(map[string]MintProgress)
	}
	p := doc.Progress[guild][token]
	if p.Sent == nil {
		p.Sent = make(map[string]bool)
	}
	return p
}

func (s *SQLite) SaveMint(ctx context.Context, doc *MintDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"mint_channels", "mint_progress", "mint_sent"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	for guild, channels := range doc.Channels {
		for _, channel := range channels {
			_, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO mint_channels (guild_id, channel_id) VALUES (?, ?)",
				guild, channel,
			)
			if err != nil {
				return fmt.Errorf("insert mint channel: %w", err)
			}
		}
	}

	for guild, tokens := range doc.Progress {
		for token, p := range tokens {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO mint_progress (guild_id, token_id, last_sent_percentage) VALUES (?, ?, ?)",
				guild, token, p.LastSentPercentage,
			)
			if err != nil {
				return fmt.Errorf("insert mint progress: %w", err)
			}
			for threshold, sent := range p.Sent {
				if !sent {
					continue
				}
				_, err := tx.ExecContext(ctx,
					"INSERT INTO mint_sent (guild_id, token_id, threshold) VALUES (?, ?, ?)",
					guild, token, threshold,
				)
				if err != nil {
					return fmt.Errorf("insert mint sent: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}

// Scan support so TriState columns read straight from INTEGER.
func (t *TriState) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*t = TriState(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return err
		}
		*t = TriState(n)
	case nil:
		*t = Off
	default:
		return fmt.Errorf("unsupported tracking flag column type %T", src)
	}
	if *t > Both {
		return fmt.Errorf("%w: tracking flag %d", ErrCorrupt, *t)
	}
	return nil
}
