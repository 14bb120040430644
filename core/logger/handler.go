package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

// defaultKeyOrder pins well-known keys to stable positions so log lines
// stay scannable; unknown keys follow alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"verb",
	"state",
	"bot_id",
	"message_id",
	"method",
	"path",
	"http_code",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"count",
	"duration_ms",
	"duration",
	"payload",
	"username",
	"err",
	"err_code",
	"cause",
}

type handlerConfig struct {
	level    slog.Leveler
	out      io.Writer
	format   logFormat
	keyOrder []string
}

type structuredHandler struct {
	cfg   handlerConfig
	mu    *sync.Mutex
	attrs []slog.Attr
	group string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle formats the slog.Record and writes it to the configured output.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, 16)
	fields["ts"] = r.Time.UTC().Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = strings.ToUpper(r.Level.String())
	if r.Message != "" {
		fields["event"] = r.Message
	}

	for _, a := range h.attrs {
		h.collect(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(fields, h.group, a)
		return true
	})

	if rid := RIDFrom(ctx); rid != "" {
		if _, ok := fields["rid"]; !ok {
			fields["rid"] = rid
		}
	}

	buf := &bytes.Buffer{}
	keys := h.orderedKeys(fields)
	if h.cfg.format == formatJSON {
		writeJSONLine(buf, keys, fields)
	} else {
		writeKVLine(buf, keys, fields)
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.cfg.out.Write(buf.Bytes())
	return err
}

// WithAttrs returns a handler that always emits the provided attributes.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a handler that prefixes subsequent keys with the group name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *structuredHandler) collect(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			if sub != "" {
				sub += "." + a.Key
			} else {
				sub = a.Key
			}
		}
		for _, ga := range a.Value.Group() {
			h.collect(fields, sub, ga)
		}
		return
	}
	key := a.Key
	if key == "" {
		return
	}
	if prefix != "" {
		key = prefix + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindDuration:
		fields[key] = RoundMS(a.Value.Duration()).String()
	case slog.KindTime:
		fields[key] = a.Value.Time().UTC().Format(timeFormatMillis)
	default:
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			fields[key] = RedactToken(err.Error())
			return
		}
		fields[key] = v
	}
}

func (h *structuredHandler) orderedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, k := range h.cfg.keyOrder {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = struct{}{}
		}
	}
	rest := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func writeKVLine(buf *bytes.Buffer, keys []string, fields map[string]any) {
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(kvValue(fields[k]))
	}
}

func kvValue(v any) string {
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func writeJSONLine(buf *bytes.Buffer, keys []string, fields map[string]any) {
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(k)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(fields[k])
		if err != nil {
			valJSON, _ = json.Marshal(fmt.Sprintf("%v", fields[k]))
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
}
