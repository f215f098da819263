package httr2

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSimpleLoggerFormatsKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewSimpleLogger()
	l.logger = log.New(&buf, "", 0)

	l.Info("Request done", "status", 200, "attempt", 1)

	out := buf.String()
	if !strings.Contains(out, "INFO Request done") {
		t.Errorf("Missing level and message: %q", out)
	}
	if !strings.Contains(out, "status=200") || !strings.Contains(out, "attempt=1") {
		t.Errorf("Missing key-value pairs: %q", out)
	}
}

func TestSimpleLoggerOddPairsIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := NewSimpleLogger()
	l.logger = log.New(&buf, "", 0)

	l.Debug("msg", "dangling")

	if strings.Contains(buf.String(), "dangling") {
		t.Errorf("Dangling key must be dropped: %q", buf.String())
	}
}

func TestZerologLoggerStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf))

	l.Warn("Throttled", "realm", "https://api.example.com", "waited", 42)

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Output is not JSON: %v (%q)", err, buf.String())
	}
	if record["message"] != "Throttled" || record["level"] != "warn" {
		t.Errorf("Record = %v", record)
	}
	if record["realm"] != "https://api.example.com" {
		t.Errorf("Missing structured field: %v", record)
	}
	if record["waited"] != float64(42) {
		t.Errorf("waited = %v", record["waited"])
	}
}

func TestZerologLoggerNonStringKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf))

	l.Error("oops", 7, "value")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if record["7"] != "value" {
		t.Errorf("Non-string key must be stringified: %v", record)
	}
}
