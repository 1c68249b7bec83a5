package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBufLogger() (*SlogLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	h := slog.NewJSONHandler(buf, nil)
	return NewSlogLogger(slog.New(h)), buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSlogLogger_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func(l *SlogLogger)
		level string
	}{
		{"info", func(l *SlogLogger) { l.Info(ctx, "msg", "k", "v") }, "INFO"},
		{"warn", func(l *SlogLogger) { l.Warn(ctx, "msg", "k", "v") }, "WARN"},
		{"error", func(l *SlogLogger) { l.Error(ctx, "msg", "k", "v") }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufLogger()
			tt.log(l)
			rec := lastRecord(t, buf)
			require.Equal(t, tt.level, rec["level"])
			require.Equal(t, "msg", rec["msg"])
			require.Equal(t, "v", rec["k"])
		})
	}
}

func TestSlogLogger_With(t *testing.T) {
	l, buf := newBufLogger()
	child := l.With("module", "test")
	child.Info(context.Background(), "hello")
	rec := lastRecord(t, buf)
	require.Equal(t, "test", rec["module"])
}
