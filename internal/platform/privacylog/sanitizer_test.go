package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSanitizeArgsFingerprintsIdentities(t *testing.T) {
	args := SanitizeArgs(
		"payer", "0x5aeda56215b167893e80b4fe645ba6d5bab767de",
		"payee", "0x62730609dacb2b9bcee9d5b4d8612a9b4b1f06fd",
		"action", "create",
	)
	if len(args) != 6 {
		t.Fatalf("unexpected args length: %d", len(args))
	}
	if got := args[0]; got != "payer_fp" {
		t.Fatalf("unexpected key: %v", got)
	}
	if got := args[1].(string); !strings.HasPrefix(got, "fp_") {
		t.Fatalf("unexpected fingerprint value: %q", got)
	}
	if got := args[4]; got != "action" {
		t.Fatalf("expected untouched key, got %v", got)
	}
}

func TestSanitizingHandlerRedactsSecretsAndIdentities(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(WrapHandler(base))
	logger.Info("applied",
		"signer", "0x5aeda56215b167893e80b4fe645ba6d5bab767de",
		"signature", "0xdeadbeef",
		"mnemonic", "legal winner thank year",
		"channel", "0xabc123",
	)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if _, ok := payload["signer"]; ok {
		t.Fatal("signer should not be present")
	}
	if _, ok := payload["signer_fp"]; !ok {
		t.Fatal("signer_fp should be present")
	}
	if got, _ := payload["signature"].(string); got != redactedValue {
		t.Fatalf("expected redacted signature, got %q", got)
	}
	if got, _ := payload["mnemonic"].(string); got != redactedValue {
		t.Fatalf("expected redacted mnemonic, got %q", got)
	}
	if got, _ := payload["channel"].(string); got != "0xabc123" {
		t.Fatalf("channel should pass through, got %q", got)
	}
}

func TestFingerprintIdentityIgnoresAddressCase(t *testing.T) {
	lower := FingerprintIdentity("0x5aeda56215b167893e80b4fe645ba6d5bab767de")
	upper := FingerprintIdentity("0x5AeDa56215b167893E80B4fE645BA6d5Bab767DE")
	if lower == "" || lower != upper {
		t.Fatalf("expected case-insensitive fingerprint, got %q vs %q", lower, upper)
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("payer_address", "0x5aeda56215b167893e80b4fe645ba6d5bab767de"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "payer_address_fp") {
		t.Fatalf("expected fingerprinted payer_address key, got %s", buf.String())
	}
}
