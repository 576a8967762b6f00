// Package fold derives request state by reducing a journal channel
// through the engine.
package fold

import (
	"clearline/go-engine/internal/journal"
	"clearline/go-engine/pkg/engine"
	"clearline/go-engine/pkg/protocol"
)

// RejectedAction records one journal entry the engine refused during
// a fold. The fold continues past it; rejected entries never change
// derived state.
type RejectedAction struct {
	Seq    uint64              `json:"seq"`
	Name   protocol.ActionName `json:"name"`
	Code   string              `json:"code"`
	Reason string              `json:"reason"`
}

// Derivation is the engine's view of one channel: the current request
// plus everything that was refused along the way.
type Derivation struct {
	Request  protocol.Request `json:"request"`
	Rejected []RejectedAction `json:"rejected,omitempty"`
	LastSeq  uint64           `json:"last_seq"`
}

// Fold reduces entries in order. Journals written through Service
// contain only valid actions; journals written elsewhere may hold
// actions this engine rejects, so a rejected entry is recorded and
// folding continues.
func Fold(eng *engine.Engine, entries []journal.Entry) Derivation {
	var derivation Derivation
	var prior *protocol.Request

	for _, entry := range entries {
		derivation.LastSeq = entry.Seq
		next, err := eng.ApplyAt(entry.Signed, prior, entry.At)
		if err != nil {
			derivation.Rejected = append(derivation.Rejected, RejectedAction{
				Seq:    entry.Seq,
				Name:   entry.Signed.Data.Name,
				Code:   engine.ErrorCode(err),
				Reason: err.Error(),
			})
			continue
		}
		prior = &next
	}
	if prior != nil {
		derivation.Request = *prior
	}
	return derivation
}
