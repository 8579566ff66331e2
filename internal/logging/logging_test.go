package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSystemLog_MapsKnownAttrs(t *testing.T) {
	record := slog.NewRecord(time.Now(), slog.LevelError, "order tracking ended", 0)
	record.AddAttrs(
		slog.String("pub_track_id", "TRK-1"),
		slog.String("error", "status endpoint unreachable"),
		slog.Int("attempts", 4),
	)

	entry := toSystemLog(record, []slog.Attr{slog.String("member_id", "member-1")})

	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "member-1", entry.MemberID)
	assert.Equal(t, "TRK-1", entry.PubTrackID)
	assert.Equal(t, "status endpoint unreachable", entry.Error)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Extra, &extra))
	assert.EqualValues(t, 4, extra["attempts"])
}

func TestPGHandler_WithAttrsKeepsSink(t *testing.T) {
	h := &PGHandler{sink: &pgSink{}}

	child := h.WithAttrs([]slog.Attr{slog.String("member_id", "m")}).(*PGHandler)

	assert.Same(t, h.sink, child.sink)
	assert.Len(t, child.attrs, 1)
	assert.Empty(t, h.attrs)
	assert.False(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	var info, warn bytes.Buffer
	multi := NewMultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(multi).With("member_id", "member-1")

	logger.Info("order placed")
	logger.Warn("callback rejected")

	assert.Equal(t, 2, bytes.Count(info.Bytes(), []byte("\n")))
	assert.Equal(t, 1, bytes.Count(warn.Bytes(), []byte("\n")))
	assert.Contains(t, warn.String(), `"member_id":"member-1"`)
}
