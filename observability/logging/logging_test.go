package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := map[string]interface{}{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestRenameAttrMapsJournalKeys(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: renameAttr})
	slog.New(handler).Info("pool settled", "poolId", "0")

	line := logLine(t, &buf)
	if line["message"] != "pool settled" {
		t.Fatalf("message = %v", line["message"])
	}
	if line["severity"] != "INFO" {
		t.Fatalf("severity = %v", line["severity"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatal("timestamp key missing")
	}
	if line["poolId"] != "0" {
		t.Fatalf("poolId = %v", line["poolId"])
	}
	for _, stale := range []string{"msg", "level", "time"} {
		if _, ok := line[stale]; ok {
			t.Fatalf("default key %q leaked through", stale)
		}
	}
}

func TestHTTPErrorLogRoutesThroughHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: renameAttr})
	HTTPErrorLog(slog.New(handler)).Print("accept error")

	line := logLine(t, &buf)
	if line["severity"] != "ERROR" {
		t.Fatalf("severity = %v", line["severity"])
	}
	if msg, _ := line["message"].(string); !strings.Contains(msg, "accept error") {
		t.Fatalf("message = %v", line["message"])
	}
}
