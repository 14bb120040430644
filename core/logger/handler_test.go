package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) *structuredHandler {
	return newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		out:      buf,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(newTestHandler(buf, formatKV)).With("component", "app")

	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	LogEvent(ctx, log, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "update_id=42") || !strings.Contains(line, "user_id=7") || !strings.Contains(line, "chat_id=9") {
		t.Fatalf("expected update metadata in line: %s", line)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(newTestHandler(buf, formatJSON)).With("component", "webhook")

	ctx := WithRID(context.Background(), "rid-json")
	LogEvent(ctx, log, slog.LevelError, "dispatch.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"webhook"`, `"event":"dispatch.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		out:    buf,
		format: formatKV,
	})
	log := slog.New(h)
	log.Debug("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("debug record should be filtered, got %q", buf.String())
	}
	log.Info("visible")
	if !strings.Contains(buf.String(), "event=visible") {
		t.Fatalf("info record missing: %q", buf.String())
	}
}

func TestKVValueQuoting(t *testing.T) {
	if got := kvValue("plain"); got != "plain" {
		t.Fatalf("plain value mangled: %s", got)
	}
	if got := kvValue("two words"); got != `"two words"` {
		t.Fatalf("spaced value not quoted: %s", got)
	}
	if got := kvValue(""); got != `""` {
		t.Fatalf("empty value not quoted: %s", got)
	}
}

func TestRedactToken(t *testing.T) {
	in := `Post "https://api.telegram.org/bot123456:ABC-def_79/sendMessage": timeout`
	out := RedactToken(in)
	if strings.Contains(out, "123456:ABC") {
		t.Fatalf("token leaked: %s", out)
	}
	if !strings.Contains(out, "bot<redacted>") {
		t.Fatalf("expected redaction marker: %s", out)
	}
}

func TestBuildRID(t *testing.T) {
	if got := BuildRID(1, 2, 3); got != "1:2:3" {
		t.Fatalf("unexpected rid: %s", got)
	}
}
