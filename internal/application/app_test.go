package application

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/JonMunkholm/completions/internal/core"
	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogImportEvent(t *testing.T) {
	buf := captureLog(t)

	logImportEvent(core.ImportEvent{ImportID: "imp-1", Phase: core.PhaseTestPacks, Rows: 2})
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "import_id=imp-1")

	buf.Reset()
	logImportEvent(core.ImportEvent{ImportID: "imp-1", Phase: core.PhaseTags, Rows: 5, Err: errors.New("connection reset")})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "connection reset")
}
