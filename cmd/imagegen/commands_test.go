package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAttemptFlags(t *testing.T) {
	f, rest, err := parseAttemptFlags("vary", []string{"-yes", "-out", "x.png", "-policy", "replace", "abc"}, true)
	require.NoError(t, err)
	assert.True(t, f.yes)
	assert.Equal(t, "x.png", f.out)
	assert.Equal(t, "replace", f.policy)
	assert.Equal(t, []string{"abc"}, rest)

	_, _, err = parseAttemptFlags("generate", []string{"-policy", "replace", "a cat"}, false)
	assert.Error(t, err, "generate has no policy flag")
}

func TestParseAttemptFlags_PromptWords(t *testing.T) {
	f, rest, err := parseAttemptFlags("generate", []string{"a", "red", "balloon"}, false)
	require.NoError(t, err)
	assert.False(t, f.yes)
	assert.Equal(t, "a red balloon", strings.Join(rest, " "))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\n", false, false},
		{"", true, true}, // EOF
	}
	for _, tt := range tests {
		r := bufio.NewReader(strings.NewReader(tt.input))
		assert.Equal(t, tt.want, confirm(r, "ok?", tt.defaultYes), "input %q", tt.input)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "héllo wo…", truncate("héllo world", 9))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "2.0 KB", humanBytes(2048))
	assert.Equal(t, "1.5 MB", humanBytes(3<<19))
}

func TestColorHandler_WritesAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &colorHandler{out: &buf, mu: &sync.Mutex{}, level: slog.LevelInfo}
	logger := slog.New(h).With("component", "test")

	logger.Debug("hidden")
	logger.Info("attempt dispatched", "role", "generation")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "attempt dispatched")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "role=")
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
}
