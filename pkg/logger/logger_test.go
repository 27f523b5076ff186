package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"fileflow/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logger.Level
		wantErr bool
	}{
		{"DEBUG", logger.DEBUG, false},
		{"debug", logger.DEBUG, false},
		{"Info", logger.INFO, false},
		{"WARN", logger.WARN, false},
		{"ERROR", logger.ERROR, false},
		{"VERBOSE", logger.INFO, true},
	}

	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithConfig(logger.Config{Level: logger.WARN, Output: &buf})

	log.Debug("not shown")
	log.Info("not shown either")
	log.Warn("shown")
	log.Error("also shown")

	output := buf.String()
	if strings.Contains(output, "not shown") {
		t.Error("expected sub-threshold messages to be dropped")
	}
	if !strings.Contains(output, "[WARN] shown") {
		t.Error("expected WARN message in output")
	}
	if !strings.Contains(output, "[ERROR] also shown") {
		t.Error("expected ERROR message in output")
	}
}

func TestLogger_FieldsAppearInOutput(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithConfig(logger.Config{Level: logger.INFO, Output: &buf})

	derived := log.WithField("component", "test-component")
	derived.Info("something happened", "count", 3)

	output := buf.String()
	if !strings.Contains(output, "component=test-component") {
		t.Errorf("expected derived field in output, got: %s", output)
	}
	if !strings.Contains(output, "count=3") {
		t.Errorf("expected call-site field in output, got: %s", output)
	}

	// the parent logger is unaffected by derivation
	buf.Reset()
	log.Info("plain")
	if strings.Contains(buf.String(), "component=") {
		t.Error("expected parent logger to carry no derived fields")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithConfig(logger.Config{Level: logger.INFO, Output: &buf, Format: "json"})

	log.WithField("backend", "LOCAL").Info("object stored", "size", 42)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "object stored" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("unexpected level: %v", entry["level"])
	}
	if entry["backend"] != "LOCAL" {
		t.Errorf("unexpected backend field: %v", entry["backend"])
	}
	if entry["size"] != float64(42) {
		t.Errorf("unexpected size field: %v", entry["size"])
	}
}

func TestLogger_QuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithConfig(logger.Config{Level: logger.INFO, Output: &buf})

	log.Info("msg", "reason", "two words")

	if !strings.Contains(buf.String(), `reason="two words"`) {
		t.Errorf("expected quoted value, got: %s", buf.String())
	}
}
