package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"clearline/go-engine/internal/events"
	"clearline/go-engine/internal/fold"
	"clearline/go-engine/internal/journal"
	"clearline/go-engine/internal/settlement"
	"clearline/go-engine/pkg/protocol"
)

type derivationResponse struct {
	Channel  string                `json:"channel"`
	Request  protocol.Request      `json:"request"`
	Rejected []fold.RejectedAction `json:"rejected,omitempty"`
	LastSeq  uint64                `json:"last_seq"`
}

type channelListResponse struct {
	Channels []string `json:"channels"`
}

type entriesResponse struct {
	Channel string          `json:"channel"`
	Entries []journal.Entry `json:"entries"`
}

type paymentsResponse struct {
	Channel   string            `json:"channel"`
	Reference string            `json:"reference"`
	Facts     []settlement.Fact `json:"facts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	if !s.allowSubmit(w, r) {
		return
	}
	signed, err := protocol.DecodeSignedAction(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed-payload", err.Error())
		return
	}
	derivation, err := s.svc.CreateChannel(r.Context(), signed)
	if err != nil {
		writeRejection(w, err)
		return
	}
	w.Header().Set("Location", "/v1/channels/"+derivation.Request.RequestID)
	writeJSON(w, http.StatusCreated, toDerivationResponse(derivation.Request.RequestID, derivation))
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	if !s.allowSubmit(w, r) {
		return
	}
	channel := chi.URLParam(r, "channel")
	signed, err := protocol.DecodeSignedAction(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed-payload", err.Error())
		return
	}
	derivation, err := s.svc.Append(r.Context(), channel, signed)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDerivationResponse(channel, derivation))
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.svc.Channels(r.Context())
	if err != nil {
		writeRejection(w, err)
		return
	}
	if channels == nil {
		channels = []string{}
	}
	writeJSON(w, http.StatusOK, channelListResponse{Channels: channels})
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	derivation, err := s.svc.Derive(r.Context(), channel)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDerivationResponse(channel, derivation))
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	entries, err := s.svc.Entries(r.Context(), channel)
	if err != nil {
		writeRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse{Channel: channel, Entries: entries})
}

func (s *Server) handleChannelPayments(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	derivation, err := s.svc.Derive(r.Context(), channel)
	if err != nil {
		writeRejection(w, err)
		return
	}
	reference := settlement.ReferenceForRequest(derivation.Request)
	facts := []settlement.Fact{}
	if reference != "" {
		listed, err := s.facts.ListByReference(r.Context(), reference)
		if err != nil {
			writeRejection(w, err)
			return
		}
		facts = listed
	}
	writeJSON(w, http.StatusOK, paymentsResponse{Channel: channel, Reference: reference, Facts: facts})
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var fact settlement.Fact
	if err := dec.Decode(&fact); err != nil {
		writeError(w, http.StatusBadRequest, "malformed-payload", err.Error())
		return
	}
	if fact.At.IsZero() {
		fact.At = s.now().UTC()
	}
	if err := s.facts.Record(r.Context(), fact); err != nil {
		writeRejection(w, err)
		return
	}
	s.logger.Info("payment recorded", "reference", fact.Reference, "tx_hash", fact.TxHash)
	if s.hub != nil {
		s.hub.Publish(events.KindPaymentRecorded, fact.Reference, fact)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reference": fact.Reference})
}

// handleEvents streams hub events as server-sent events. ?from=N
// resumes after a previously seen sequence number.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	fromSeq := int64(0)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed-payload", "from must be an integer")
			return
		}
		fromSeq = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	replay, live, cancel := s.hub.Subscribe(fromSeq)
	defer cancel()

	for _, event := range replay {
		writeServerSentEvent(w, event)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-live:
			if !open {
				return
			}
			writeServerSentEvent(w, event)
			flusher.Flush()
		}
	}
}

func writeServerSentEvent(w io.Writer, event events.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Kind, raw)
}

func (s *Server) allowSubmit(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter.Allow(submitKey(r), s.now()) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "rate-limited", "submission rate exceeded")
	return false
}

func toDerivationResponse(channel string, d fold.Derivation) derivationResponse {
	return derivationResponse{
		Channel:  channel,
		Request:  d.Request,
		Rejected: d.Rejected,
		LastSeq:  d.LastSeq,
	}
}
