//go:build go1.21

package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unkn0wn-root/hashcache"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(ln), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerGroupsFields(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})
	l := New(stdslog.New(h))

	l.Debug("d", hashcache.Fields{"key": "User:1", "n": 2})
	l.Info("i", nil)
	l.Warn("w", hashcache.Fields{"ttl": "1m0s"})
	l.Error("e", hashcache.Fields{"op": "get"})

	got := lines(t, &buf)
	require.Len(t, got, 4)
	for i, lvl := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		assert.Equal(t, lvl, got[i]["level"])
	}
	group, ok := got[0]["hashcache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "User:1", group["key"])
	assert.Equal(t, float64(2), group["n"])
	assert.NotContains(t, got[1], "hashcache")
}

func TestLoggerSkipsDisabledLevels(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelWarn}))}

	l.Debug("hidden", hashcache.Fields{"a": 1})
	l.Info("hidden", nil)
	assert.Zero(t, buf.Len())

	l.Warn("shown", nil)
	assert.Contains(t, buf.String(), "msg=shown")
}
