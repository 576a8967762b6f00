// Package memory keeps journal channels in process memory. It backs
// tests and ephemeral daemons.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"clearline/go-engine/internal/journal"
	"clearline/go-engine/pkg/protocol"
)

type Store struct {
	mu       sync.RWMutex
	channels map[string][]journal.Entry
}

func New() *Store {
	return &Store{channels: make(map[string][]journal.Entry)}
}

func (s *Store) Append(ctx context.Context, channel string, signed protocol.SignedAction, at time.Time) (journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return journal.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.channels[channel]
	entry := journal.Entry{
		Channel: channel,
		Seq:     uint64(len(entries)) + 1,
		At:      at.UTC(),
		Signed:  signed.Clone(),
	}
	s.channels[channel] = append(entries, entry)
	return cloneEntry(entry), nil
}

func (s *Store) List(ctx context.Context, channel string) ([]journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.channels[channel]
	if !ok {
		return nil, journal.ErrChannelNotFound
	}
	out := make([]journal.Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, cloneEntry(entry))
	}
	return out, nil
}

func (s *Store) Channels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.channels))
	for channel := range s.channels {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

func cloneEntry(entry journal.Entry) journal.Entry {
	entry.Signed = entry.Signed.Clone()
	return entry
}

var _ journal.Store = (*Store)(nil)
