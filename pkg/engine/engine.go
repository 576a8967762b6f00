// Package engine derives canonical payment requests from ordered
// signed actions.
//
// The reducer is pure: Apply never mutates its inputs, identical
// inputs produce identical outputs, and a rejected action leaves the
// prior request untouched. Persistence, ordering and transport belong
// to the caller.
package engine

import (
	"errors"
	"sort"
	"time"

	"clearline/go-engine/pkg/protocol"
)

// CurrentVersion is the protocol version new actions should carry.
const CurrentVersion = "0.2.0"

var defaultSupportedVersions = []string{"0.1.0", CurrentVersion}

// IdentityVerifier recovers the identity that signed payload. The
// engine never touches key material itself; tests substitute a
// deterministic stub.
type IdentityVerifier interface {
	Recover(payload []byte, sig protocol.Signature) (protocol.Identity, error)
}

// ActionHandler applies one action kind. Handlers receive a private
// deep copy of the prior request (the zero Request for create) and
// must either return the complete next state or an error; there is no
// partial application.
type ActionHandler interface {
	Name() protocol.ActionName
	Apply(req protocol.Request, act protocol.Action, signer protocol.Identity, at time.Time) (protocol.Request, error)
}

type Engine struct {
	verifier IdentityVerifier
	handlers map[protocol.ActionName]ActionHandler
	versions map[string]struct{}
	now      func() time.Time
}

type Option func(*Engine)

// WithClock fixes the timestamp source used by Apply.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSupportedVersions replaces the accepted action version set.
func WithSupportedVersions(versions ...string) Option {
	return func(e *Engine) {
		e.versions = make(map[string]struct{}, len(versions))
		for _, v := range versions {
			e.versions[v] = struct{}{}
		}
	}
}

// WithHandler installs or replaces the handler for one action kind.
// This is the extension point for new kinds; anything outside the
// registered set is rejected as unknown.
func WithHandler(h ActionHandler) Option {
	return func(e *Engine) {
		if h != nil {
			e.handlers[h.Name()] = h
		}
	}
}

func New(verifier IdentityVerifier, opts ...Option) (*Engine, error) {
	if verifier == nil {
		return nil, errors.New("identity verifier is required")
	}
	e := &Engine{
		verifier: verifier,
		handlers: map[protocol.ActionName]ActionHandler{},
		versions: map[string]struct{}{},
		now:      time.Now,
	}
	for _, v := range defaultSupportedVersions {
		e.versions[v] = struct{}{}
	}
	for _, h := range []ActionHandler{createHandler{}, acceptHandler{}} {
		e.handlers[h.Name()] = h
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) SupportsVersion(v string) bool {
	_, ok := e.versions[v]
	return ok
}

// SupportedVersions lists the accepted action versions in ascending
// order.
func (e *Engine) SupportedVersions() []string {
	out := make([]string, 0, len(e.versions))
	for v := range e.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func newEvent(act protocol.Action, signer protocol.Identity, at time.Time) protocol.Event {
	return protocol.Event{
		Name:         act.Name,
		ActionSigner: signer,
		Parameters:   protocol.CloneParams(act.Parameters),
		Timestamp:    at.UTC(),
	}
}
