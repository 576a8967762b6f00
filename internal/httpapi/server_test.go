package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clearline/go-engine/internal/events"
	"clearline/go-engine/internal/fold"
	"clearline/go-engine/internal/journal/memory"
	"clearline/go-engine/internal/platform/ratelimiter"
	"clearline/go-engine/internal/settlement"
	"clearline/go-engine/pkg/engine"
	"clearline/go-engine/pkg/protocol"
	"clearline/go-engine/pkg/sign"
)

const (
	payeeMnemonic    = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	payerMnemonic    = "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong"
	outsiderMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T, mnemonic string) *sign.EcdsaSigner {
	t.Helper()
	signer, err := sign.NewSignerFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("derive signer: %v", err)
	}
	return signer
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	eng, err := engine.New(sign.NewEcdsaVerifier())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	svc := fold.NewService(memory.New(), eng, testLogger(), nil)
	info := Info{
		Service:           "clearline-engine",
		Version:           "test",
		ProtocolVersion:   engine.CurrentVersion,
		SupportedVersions: eng.SupportedVersions(),
	}
	return NewServer(svc, settlement.NewMemoryRecorder(), testLogger(), info, opts...)
}

func signedCreate(t *testing.T, signer *sign.EcdsaSigner, params map[string]any) protocol.SignedAction {
	t.Helper()
	act := protocol.Action{
		Name:       protocol.ActionCreate,
		Version:    engine.CurrentVersion,
		Parameters: params,
	}
	signed, err := signer.SignAction(act, protocol.SignatureMethodEcdsaEthereum)
	if err != nil {
		t.Fatalf("sign create: %v", err)
	}
	return signed
}

func signedAccept(t *testing.T, signer *sign.EcdsaSigner) protocol.SignedAction {
	t.Helper()
	act := protocol.Action{Name: protocol.ActionAccept, Version: engine.CurrentVersion}
	signed, err := signer.SignAction(act, protocol.SignatureMethodEcdsaEthereum)
	if err != nil {
		t.Fatalf("sign accept: %v", err)
	}
	return signed
}

func do(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeDerivation(t *testing.T, rec *httptest.ResponseRecorder) derivationResponse {
	t.Helper()
	var out derivationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode derivation response: %v", err)
	}
	return out
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return out.Error.Code
}

func TestCreateAcceptDeriveOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	payee := testSigner(t, payeeMnemonic)
	payer := testSigner(t, payerMnemonic)

	create := signedCreate(t, payee, map[string]any{
		"payee":          payee.Address(),
		"payer":          payer.Address(),
		"expectedAmount": "1500",
	})
	rec := do(t, router, http.MethodPost, "/v1/channels", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeDerivation(t, rec)
	if created.Channel == "" || created.Channel != created.Request.RequestID {
		t.Fatalf("channel must equal derived request id, got %q", created.Channel)
	}
	if created.Request.State != protocol.StateCreated {
		t.Fatalf("unexpected state: %q", created.Request.State)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/channels/"+created.Channel {
		t.Fatalf("unexpected location header: %q", loc)
	}

	rec = do(t, router, http.MethodPost, "/v1/channels/"+created.Channel+"/actions", signedAccept(t, payer))
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status %d: %s", rec.Code, rec.Body.String())
	}
	accepted := decodeDerivation(t, rec)
	if accepted.Request.State != protocol.StateAccepted {
		t.Fatalf("unexpected state after accept: %q", accepted.Request.State)
	}
	if accepted.LastSeq != 2 {
		t.Fatalf("unexpected last seq: %d", accepted.LastSeq)
	}

	rec = do(t, router, http.MethodGet, "/v1/channels/"+created.Channel, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("derive status %d: %s", rec.Code, rec.Body.String())
	}
	derived := decodeDerivation(t, rec)
	if derived.Request.State != protocol.StateAccepted {
		t.Fatalf("derive disagrees with submit: %q", derived.Request.State)
	}

	rec = do(t, router, http.MethodGet, "/v1/channels", nil)
	var listed channelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode channel list: %v", err)
	}
	if len(listed.Channels) != 1 || listed.Channels[0] != created.Channel {
		t.Fatalf("unexpected channel list: %v", listed.Channels)
	}

	rec = do(t, router, http.MethodGet, "/v1/channels/"+created.Channel+"/actions", nil)
	var entries entriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries.Entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries.Entries))
	}
}

func TestCreateByOutsiderIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	payee := testSigner(t, payeeMnemonic)
	payer := testSigner(t, payerMnemonic)
	outsider := testSigner(t, outsiderMnemonic)

	create := signedCreate(t, outsider, map[string]any{
		"payee":          payee.Address(),
		"payer":          payer.Address(),
		"expectedAmount": "100",
	})
	rec := do(t, router, http.MethodPost, "/v1/channels", create)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "unauthorized" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestAcceptByPayeeIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	payee := testSigner(t, payeeMnemonic)
	payer := testSigner(t, payerMnemonic)

	create := signedCreate(t, payee, map[string]any{
		"payee":          payee.Address(),
		"payer":          payer.Address(),
		"expectedAmount": "100",
	})
	rec := do(t, router, http.MethodPost, "/v1/channels", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	channel := decodeDerivation(t, rec).Channel

	rec = do(t, router, http.MethodPost, "/v1/channels/"+channel+"/actions", signedAccept(t, payee))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "unauthorized" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestSubmitToUnknownChannel(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	payer := testSigner(t, payerMnemonic)

	rec := do(t, router, http.MethodPost, "/v1/channels/0xmissing/actions", signedAccept(t, payer))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "channel-not-found" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/channels", bytes.NewReader([]byte(`{"data":`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "malformed-payload" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	srv := newTestServer(t, WithSubmitLimiter(ratelimiter.New(0.01, 1, time.Minute)))
	router := srv.Router()
	payee := testSigner(t, payeeMnemonic)
	payer := testSigner(t, payerMnemonic)

	create := signedCreate(t, payee, map[string]any{
		"payee":          payee.Address(),
		"payer":          payer.Address(),
		"expectedAmount": "100",
	})
	rec := do(t, router, http.MethodPost, "/v1/channels", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create status %d: %s", rec.Code, rec.Body.String())
	}

	second := signedCreate(t, payee, map[string]any{
		"payee":          payee.Address(),
		"payer":          payer.Address(),
		"expectedAmount": "200",
	})
	rec = do(t, router, http.MethodPost, "/v1/channels", second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "rate-limited" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestPaymentsRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	payee := testSigner(t, payeeMnemonic)
	payer := testSigner(t, payerMnemonic)

	create := signedCreate(t, payee, map[string]any{
		"payee":          payee.Address(),
		"payer":          payer.Address(),
		"expectedAmount": "2500",
	})
	rec := do(t, router, http.MethodPost, "/v1/channels", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeDerivation(t, rec)
	reference := settlement.PaymentReference(created.Request.RequestID, payee.Address().Value)

	fact := map[string]any{
		"reference": reference,
		"amount":    "2500",
		"fee":       "3",
		"tx_hash":   "0xfeedbead",
	}
	rec = do(t, router, http.MethodPost, "/v1/payments", fact)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record payment status %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodGet, "/v1/channels/"+created.Channel+"/payments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list payments status %d: %s", rec.Code, rec.Body.String())
	}
	var payments paymentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payments); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if payments.Reference != reference {
		t.Fatalf("reference mismatch: %q vs %q", payments.Reference, reference)
	}
	if len(payments.Facts) != 1 || payments.Facts[0].TxHash != "0xfeedbead" {
		t.Fatalf("unexpected facts: %+v", payments.Facts)
	}
	if payments.Facts[0].At.IsZero() {
		t.Fatal("server must stamp facts submitted without a timestamp")
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	fact := map[string]any{
		"reference": "ref1",
		"amount":    "-5",
		"tx_hash":   "0xabc",
	}
	rec := do(t, router, http.MethodPost, "/v1/payments", fact)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := decodeErrorCode(t, rec); code != "malformed-fact" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestEventStreamReplays(t *testing.T) {
	hub := events.NewHub(16)
	srv := newTestServer(t, WithEvents(hub))
	router := srv.Router()

	hub.Publish(events.KindActionApplied, "chan-a", map[string]string{"state": "created"})
	hub.Publish(events.KindPaymentRecorded, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/events?from=0", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: action_applied") {
		t.Fatalf("missing applied event in stream: %q", body)
	}
	if !strings.Contains(body, "event: payment_recorded") {
		t.Fatalf("missing payment event in stream: %q", body)
	}
	if !strings.Contains(body, `"channel":"chan-a"`) {
		t.Fatalf("missing channel in event data: %q", body)
	}
}

func TestEventStreamDisabledWithoutHub(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()
	rec := do(t, router, http.MethodGet, "/v1/events", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without hub, got %d", rec.Code)
	}
}

func TestInfoAndHealth(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/v1/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status %d", rec.Code)
	}
	var info Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.ProtocolVersion != engine.CurrentVersion {
		t.Fatalf("unexpected protocol version: %q", info.ProtocolVersion)
	}
	if len(info.SupportedVersions) == 0 {
		t.Fatal("supported versions must be advertised")
	}
}
