package job

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/GoCodeAlone/kiejob/internal/kiefake"
)

func TestCreditsFetch(t *testing.T) {
	tests := []struct {
		name    string
		reply   kiefake.Reply
		want    int64
		wantErr string
	}{
		{"number", kiefake.JSON(map[string]any{"code": 200, "msg": "success", "data": 4321}), 4321, ""},
		{"numeric string", kiefake.JSON(map[string]any{"code": 200, "data": "17"}), 17, ""},
		{"error code", kiefake.JSON(map[string]any{"code": 401, "msg": "bad key"}), 0, "error code 401: bad key"},
		{"not integer", kiefake.JSON(map[string]any{"code": 200, "data": "lots"}), 0, "not an integer"},
		{"not json", kiefake.HTTP(http.StatusOK, "oops"), 0, "did not return valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.srv.QueueCredits(tt.reply)
			got, err := h.credits.Fetch(context.Background(), "k")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got != tt.want {
				t.Errorf("Fetch = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLogRemainingPrefersRecord(t *testing.T) {
	h := newHarness(t)
	n := json.Number("88")
	h.credits.LogRemaining(context.Background(), "k", &Record{RemainedCredits: &n})
	if h.srv.CreditCalls() != 0 {
		t.Error("credit endpoint must not be called when the record carries remainedCredits")
	}
	entries := h.logs.FilterMessage("remaining credits").All()
	if len(entries) != 1 || entries[0].ContextMap()["credits"] != "88" {
		t.Errorf("log entries = %v", entries)
	}
}

func TestLogRemainingSwallowsFailure(t *testing.T) {
	h := newHarness(t)
	h.srv.QueueCredits(kiefake.HTTP(http.StatusInternalServerError, "down"))
	h.credits.LogRemaining(context.Background(), "k", &Record{})
	if h.srv.CreditCalls() != 1 {
		t.Errorf("credit calls = %d, want 1", h.srv.CreditCalls())
	}
	if h.logs.FilterMessage("failed to fetch remaining credits").Len() != 1 {
		t.Error("expected a warning for the failed lookup")
	}
}
