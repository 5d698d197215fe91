package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TriState is a tracking flag: off, on, or "both" (track regardless of direction).
type TriState uint8

const (
	Off TriState = iota
	On
	Both
)

// ParseTriState parses admin input: true/false/both (case-insensitive).
func ParseTriState(s string) (TriState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return On, nil
	case "false", "no", "0", "off", "":
		return Off, nil
	case "both":
		return Both, nil
	}
	return Off, fmt.Errorf("%w: tracking flag must be true, false or both, got %q", ErrInvalidInput, s)
}

// Enabled reports whether the flag turns tracking on.
func (t TriState) Enabled() bool {
	return t == On || t == Both
}

func (t TriState) String() string {
	switch t {
	case On:
		return "true"
	case Both:
		return "both"
	default:
		return "false"
	}
}

func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case On:
		return []byte("true"), nil
	case Both:
		return []byte(`"both"`), nil
	default:
		return []byte("false"), nil
	}
}

func (t *TriState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		*t = On
		return nil
	case "false", "null":
		*t = Off
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tracking flag: %w", err)
	}
	v, err := ParseTriState(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ChannelID is a chat destination identifier. Older state files store it as a number.
type ChannelID string

func (c *ChannelID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChannelID(s)
		return nil
	}
	if string(data) == "null" {
		*c = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channel id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("channel id: %w", err)
	}
	*c = ChannelID(n.String())
	return nil
}

// WalletConfig is the per-channel tracking configuration of one wallet.
type WalletConfig struct {
	Name      string   `json:"name"`
	TrackMint TriState `json:"track_mint"`
	TrackBuy  TriState `json:"track_buy"`
	TrackSell TriState `json:"track_sell"`
}

// TrackingDocument is the persisted wallet tracking state.
//
//	tracked_wallets:     scope key -> wallet address -> config
//	transaction_history: scope key -> output channel -> wallet address -> notified ids
//	output_channels:     scope key -> destination channel
type TrackingDocument struct {
	TrackedWallets     map[string]map[string]WalletConfig        `json:"tracked_wallets"`
	TransactionHistory map[string]map[string]map[string][]string `json:"transaction_history"`
	OutputChannels     map[string]ChannelID                      `json:"output_channels"`
}

// NewTrackingDocument returns an empty document.
func NewTrackingDocument() *TrackingDocument {
	d := &TrackingDocument{}
	d.normalize()
	return d
}

func (d *TrackingDocument) normalize() {
	if d.TrackedWallets == nil {
		d.TrackedWallets = make(map[string]map[string]WalletConfig)
	}
	if d.TransactionHistory == nil {
		d.TransactionHistory = make(map[string]map[string]map[string][]string)
	}
	if d.OutputChannels == nil {
		d.OutputChannels = make(map[string]ChannelID)
	}
}

// MintProgress is the announcement state of one token in one guild.
type MintProgress struct {
	Sent               map[string]bool `json:"sent"`
	LastSentPercentage float64         `json:"last_sent_percentage"`
}

// MintDocument is the persisted rune mint tracker state.
//
//	channels: guild -> channels configured for mint updates
//	progress: guild -> token -> progress
type MintDocument struct {
	Channels map[string][]string                `json:"channels"`
	Progress map[string]map[string]MintProgress `json:"progress"`
}

// UnmarshalJSON also reads the flat layout older deployments wrote, where each
// guild maps channel ids to true and token ids to their progress.
func (d *MintDocument) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	_, hasChannels := top["channels"]
	_, hasProgress := top["progress"]
	if hasChannels || hasProgress || len(top) == 0 {
		type plain MintDocument
		var v plain
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*d = MintDocument(v)
		return nil
	}

	*d = MintDocument{}
	d.normalize()
	for guild, raw := range top {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("mint guild %s: %w", guild, err)
		}
		for key, value := range entries {
			var enabled bool
			if err := json.Unmarshal(value, &enabled); err == nil {
				if enabled {
					d.Channels[guild] = append(d.Channels[guild], key)
				}
				continue
			}
			var progress MintProgress
			if err := json.Unmarshal(value, &progress); err != nil {
				return fmt.Errorf("mint guild %s token %s: %w", guild, key, err)
			}
			if d.Progress[guild] == nil {
				d.Progress[guild] = make(map[string]MintProgress)
			}
			d.Progress[guild][key] = progress
		}
		sort.Strings(d.Channels[guild])
	}
	return nil
}

// NewMintDocument returns an empty document.
func NewMintDocument() *MintDocument {
	d := &MintDocument{}
	d.normalize()
	return d
}

func (d *MintDocument) normalize() {
	if d.Channels == nil {
		d.Channels = make(map[string][]string)
	}
	if d.Progress == nil {
		d.Progress = make(map[string]map[string]MintProgress)
	}
}

// FormatThreshold is the key used for a threshold in MintProgress.Sent.
func FormatThreshold(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
