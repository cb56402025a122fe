package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	internalwebhook "github.com/spslater/voicetally/internal/webhook"
)

func TestSendImportSummary_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendImportSummary(context.Background(), internalwebhook.ImportSummaryPayload{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendImportSummary_Success(t *testing.T) {
	var got internalwebhook.ImportSummaryPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	payload := internalwebhook.ImportSummaryPayload{
		RunID:           "run-1",
		GuildID:         "guild-1",
		Source:          "voice.log",
		Lines:           120,
		Parsed:          118,
		Malformed:       2,
		SegmentsWritten: 57,
	}
	sender := NewHTTPSender(server.URL)
	if err := sender.SendImportSummary(context.Background(), payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.RunID != "run-1" || got.SegmentsWritten != 57 || got.Malformed != 2 {
		t.Fatalf("unexpected payload received: %+v", got)
	}
}

func TestSendImportSummary_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendImportSummary(context.Background(), internalwebhook.ImportSummaryPayload{RunID: "run-1"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
