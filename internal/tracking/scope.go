package tracking

import (
	"fmt"
	"strings"

	"github.com/suspectuso/ord-tracker/internal/storage"
)

// Scope is the owner of a wallet registration. Channel is empty for deployments
// that track per guild.
type Scope struct {
	Guild   string
	Channel string
}

// Key returns the persisted scope key: "guild-channel", or the bare guild.
func (s Scope) Key() string {
	if s.Channel == "" {
		return s.Guild
	}
	return s.Guild + "-" + s.Channel
}

// ParseScope splits a persisted scope key. A leading minus belongs to the guild id
// (negative chat ids), so the separator search starts after it.
func ParseScope(key string) Scope {
	start := 0
	if strings.HasPrefix(key, "-") {
		start = 1
	}
	i := strings.Index(key[start:], "-")
	if i < 0 {
		return Scope{Guild: key}
	}
	i += start
	return Scope{Guild: key[:i], Channel: key[i+1:]}
}

// Validate rejects ids that would not survive Key and ParseScope: a minus may only
// appear as the first character of an id.
func (s Scope) Validate() error {
	if s.Guild == "" {
		return fmt.Errorf("%w: guild is required", storage.ErrInvalidInput)
	}
	for _, id := range []string{s.Guild, s.Channel} {
		if id == "-" || strings.Contains(strings.TrimPrefix(id, "-"), "-") {
			return fmt.Errorf("%w: id %q may only contain a leading minus", storage.ErrInvalidInput, id)
		}
	}
	return nil
}
