// Package journal defines the ordered, append-only action log the
// engine folds over. A channel holds the total order of signed
// actions for one request.
package journal

import (
	"context"
	"errors"
	"time"

	"clearline/go-engine/pkg/protocol"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
)

// Entry is one confirmed action. Seq starts at 1 and increases by one
// per append; At is the confirmation timestamp replays are stamped
// with.
type Entry struct {
	Channel string                `json:"channel"`
	Seq     uint64                `json:"seq"`
	At      time.Time             `json:"at"`
	Signed  protocol.SignedAction `json:"signed"`
}

// Store persists channels of ordered entries. Append assigns the next
// sequence number; the first append creates the channel.
type Store interface {
	Append(ctx context.Context, channel string, signed protocol.SignedAction, at time.Time) (Entry, error)
	List(ctx context.Context, channel string) ([]Entry, error)
	Channels(ctx context.Context) ([]string, error)
	Close() error
}
