package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func newBufferLogger(buf *bytes.Buffer, cfg Config) *Logger {
	return &Logger{config: cfg, logger: log.New(buf, "", 0)}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{TraceLevel, "TRACE"},
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(999), "UNKNOWN"},
	}

	for _, test := range tests {
		if result := test.level.String(); result != test.expected {
			t.Errorf("Level.String() = %v, expected %v", result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":   TraceLevel,
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitializeDefaultsComponent(t *testing.T) {
	if err := Initialize(Config{Level: InfoLevel}); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if defaultLogger == nil {
		t.Fatal("Initialize() did not set defaultLogger")
	}
	if defaultLogger.config.Component != "convoy" {
		t.Errorf("expected default component convoy, got %q", defaultLogger.config.Component)
	}
}

func TestLoggerPrettyFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: InfoLevel, Component: "test"})

	entry := LogEntry{
		Time:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:     "INFO",
		Message:   "test message",
		Component: "test",
		Fields:    map[string]interface{}{"b": 2, "a": "x"},
	}

	result := l.formatPretty(entry)

	for _, part := range []string{"2025-01-01 12:00:00", "[INFO]", "test:", "test message", "{a=x, b=2}"} {
		if !strings.Contains(result, part) {
			t.Errorf("formatPretty() result missing %q\nResult: %s", part, result)
		}
	}
}

func TestLoggerDryRunTag(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: InfoLevel, Component: "convoy", DryRun: true})
	l.Log(InfoLevel, "would exec")
	if !strings.Contains(buf.String(), "[DRY-RUN] would exec") {
		t.Errorf("expected dry-run tag, got %q", buf.String())
	}
}

func TestLoggerJSONFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: InfoLevel, JSON: true, Component: "test", DryRun: true})

	l.Log(InfoLevel, "test message", String("profile", "web"), Strings("argv", []string{"git", "fetch"}))

	var parsed LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed); err != nil {
		t.Fatalf("Log() produced invalid JSON: %v\nOutput: %s", err, buf.String())
	}
	if parsed.Message != "test message" || parsed.Level != "INFO" {
		t.Errorf("unexpected entry: %+v", parsed)
	}
	if !parsed.DryRun {
		t.Error("expected dry_run=true in JSON output")
	}
	if parsed.Fields["argv"] != "git fetch" {
		t.Errorf("expected argv field, got %v", parsed.Fields["argv"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, Config{Level: WarnLevel, Component: "test"})

	l.Log(InfoLevel, "info message")
	l.Log(DebugLevel, "debug message")
	l.Log(WarnLevel, "warn message")
	l.Log(ErrorLevel, "error message")

	output := buf.String()
	if strings.Contains(output, "info message") || strings.Contains(output, "debug message") {
		t.Error("messages below WARN should be filtered out")
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("WARN and ERROR messages should appear")
	}
}

func TestFieldConstructors(t *testing.T) {
	if f := Int("count", 42); f.Key != "count" || f.Value != 42 {
		t.Errorf("Int() = %+v", f)
	}
	if f := Duration("wait", 1500*time.Millisecond); f.Value != "1.5s" {
		t.Errorf("Duration() = %+v", f)
	}
	if f := Err(errors.New("boom")); f.Key != "error" || f.Value != "boom" {
		t.Errorf("Err() = %+v", f)
	}
	if f := Err(nil); f.Value != "<nil>" {
		t.Errorf("Err(nil) = %+v", f)
	}
}

func TestConvenienceFunctionsAndSetOutput(t *testing.T) {
	_ = Initialize(Config{Level: InfoLevel, Component: "test"})

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("output test message")
	Debug("hidden debug")
	Warn("visible warn")

	output := buf.String()
	if !strings.Contains(output, "output test message") || !strings.Contains(output, "visible warn") {
		t.Errorf("SetOutput() did not redirect output correctly: %s", output)
	}
	if strings.Contains(output, "hidden debug") {
		t.Error("debug message should be filtered at info level")
	}
}

func TestFallbackLogging(t *testing.T) {
	original := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = original }()

	Info("fallback test message")
	Error("fallback error")
}

func TestPrettyColorFollowsConfig(t *testing.T) {
	saved := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = saved }()

	var plain bytes.Buffer
	newBufferLogger(&plain, Config{Level: InfoLevel, DryRun: true}).Log(WarnLevel, "pm2 slow")
	if strings.Contains(plain.String(), "\x1b[") {
		t.Errorf("uncolored output carries escape codes: %q", plain.String())
	}
	if !strings.Contains(plain.String(), "[WARN] ") || !strings.Contains(plain.String(), "[DRY-RUN] pm2 slow") {
		t.Errorf("unexpected output: %q", plain.String())
	}

	var colored bytes.Buffer
	newBufferLogger(&colored, Config{Level: InfoLevel, UseColor: true, DryRun: true}).Log(WarnLevel, "pm2 slow")
	if !strings.Contains(colored.String(), "\x1b[33mWARN") {
		t.Errorf("warn level is not yellow: %q", colored.String())
	}
	if !strings.Contains(colored.String(), "\x1b[35m[DRY-RUN]") {
		t.Errorf("dry-run tag is not magenta: %q", colored.String())
	}
}
