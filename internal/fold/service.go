package fold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clearline/go-engine/internal/journal"
	"clearline/go-engine/internal/metrics"
	"clearline/go-engine/pkg/engine"
	"clearline/go-engine/pkg/protocol"
)

var (
	// ErrNoRequest means a channel exists but none of its entries
	// derives a request.
	ErrNoRequest = errors.New("channel derives no request")
)

// Service is the store-side of the reducer: it owns the total order
// of a channel by validating each submitted action against the
// current derivation before appending it.
type Service struct {
	mu      sync.Mutex
	store   journal.Store
	eng     *engine.Engine
	logger  *slog.Logger
	metrics *metrics.Set
	notify  func(Notification)
	now     func() time.Time
}

// Notification describes one submission outcome for observers. Code
// is empty for accepted submissions.
type Notification struct {
	Channel string
	Seq     uint64
	Action  string
	State   string
	Code    string
}

type ServiceOption func(*Service)

// WithNotify registers a callback invoked after every submission. The
// callback runs under the service lock and must not call back in.
func WithNotify(fn func(Notification)) ServiceOption {
	return func(s *Service) { s.notify = fn }
}

func NewService(store journal.Store, eng *engine.Engine, logger *slog.Logger, set *metrics.Set, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:   store,
		eng:     eng,
		logger:  logger,
		metrics: set,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChannel applies a creation action against nothing and opens
// the channel named by the derived request id.
func (s *Service) CreateChannel(ctx context.Context, signed protocol.SignedAction) (Derivation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.stamp()
	req, err := s.eng.ApplyAt(signed, nil, at)
	if err != nil {
		s.countRejected(err)
		s.notifyRejected("", signed, err)
		return Derivation{}, err
	}

	channel := req.RequestID
	if entries, listErr := s.store.List(ctx, channel); listErr == nil && len(entries) > 0 {
		// Identical payloads collide on the request id; re-applying
		// against the existing derivation yields the taxonomy error.
		existing := Fold(s.eng, entries)
		prior := existing.Request
		_, applyErr := s.eng.ApplyAt(signed, &prior, at)
		if applyErr == nil {
			applyErr = fmt.Errorf("%w: request %s", engine.ErrUnexpectedRequestForCreate, channel)
		}
		s.countRejected(applyErr)
		s.notifyRejected(channel, signed, applyErr)
		return Derivation{}, applyErr
	}

	entry, err := s.store.Append(ctx, channel, signed, at)
	if err != nil {
		return Derivation{}, fmt.Errorf("append creation: %w", err)
	}
	s.countApplied(signed)
	s.notifyApplied(channel, entry.Seq, signed, req)
	s.logger.Info("channel created",
		"channel", channel,
		"seq", entry.Seq,
		"action", string(signed.Data.Name),
	)
	return Derivation{Request: req, LastSeq: entry.Seq}, nil
}

// Append validates one follow-up action against the channel's current
// derivation and journals it on success.
func (s *Service) Append(ctx context.Context, channel string, signed protocol.SignedAction) (Derivation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.List(ctx, channel)
	if err != nil {
		return Derivation{}, err
	}
	derivation := s.fold(entries)

	var prior *protocol.Request
	if derivation.Request.RequestID != "" {
		prior = &derivation.Request
	}
	at := s.stamp()
	next, err := s.eng.ApplyAt(signed, prior, at)
	if err != nil {
		s.countRejected(err)
		s.notifyRejected(channel, signed, err)
		s.logger.Info("action rejected",
			"channel", channel,
			"action", string(signed.Data.Name),
			"code", engine.ErrorCode(err),
		)
		return Derivation{}, err
	}

	entry, err := s.store.Append(ctx, channel, signed, at)
	if err != nil {
		return Derivation{}, fmt.Errorf("append action: %w", err)
	}
	s.countApplied(signed)
	s.notifyApplied(channel, entry.Seq, signed, next)
	s.logger.Info("action applied",
		"channel", channel,
		"seq", entry.Seq,
		"action", string(signed.Data.Name),
		"state", string(next.State),
	)
	return Derivation{Request: next, Rejected: derivation.Rejected, LastSeq: entry.Seq}, nil
}

// Derive folds the channel as journaled.
func (s *Service) Derive(ctx context.Context, channel string) (Derivation, error) {
	entries, err := s.store.List(ctx, channel)
	if err != nil {
		return Derivation{}, err
	}
	derivation := s.fold(entries)
	if derivation.Request.RequestID == "" {
		return derivation, ErrNoRequest
	}
	return derivation, nil
}

// Entries exposes the raw journal for a channel.
func (s *Service) Entries(ctx context.Context, channel string) ([]journal.Entry, error) {
	return s.store.List(ctx, channel)
}

func (s *Service) Channels(ctx context.Context) ([]string, error) {
	return s.store.Channels(ctx)
}

func (s *Service) fold(entries []journal.Entry) Derivation {
	started := time.Now()
	derivation := Fold(s.eng, entries)
	if s.metrics != nil {
		s.metrics.FoldDuration.Observe(time.Since(started).Seconds())
	}
	return derivation
}

// stamp truncates to the journal's millisecond resolution so a replay
// derives byte-identical state.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Service) countApplied(signed protocol.SignedAction) {
	if s.metrics != nil {
		s.metrics.ActionsApplied.WithLabelValues(string(signed.Data.Name)).Inc()
	}
}

func (s *Service) countRejected(err error) {
	if s.metrics != nil {
		s.metrics.ActionsRejected.WithLabelValues(engine.ErrorCode(err)).Inc()
	}
}

func (s *Service) notifyApplied(channel string, seq uint64, signed protocol.SignedAction, req protocol.Request) {
	if s.notify == nil {
		return
	}
	s.notify(Notification{
		Channel: channel,
		Seq:     seq,
		Action:  string(signed.Data.Name),
		State:   string(req.State),
	})
}

func (s *Service) notifyRejected(channel string, signed protocol.SignedAction, err error) {
	if s.notify == nil {
		return
	}
	s.notify(Notification{
		Channel: channel,
		Action:  string(signed.Data.Name),
		Code:    engine.ErrorCode(err),
	})
}
