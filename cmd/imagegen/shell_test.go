package main

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/imagegen/internal/config"
	"github.com/2389/imagegen/internal/failure"
	"github.com/2389/imagegen/internal/lifecycle"
	"github.com/2389/imagegen/internal/store"
)

// stubGenerator answers every call with the same image.
type stubGenerator struct {
	image []byte
}

func (g stubGenerator) Generate(context.Context, string) ([]byte, error) { return g.image, nil }
func (g stubGenerator) Vary(context.Context, []byte) ([]byte, error)     { return g.image, nil }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func pngSize(t *testing.T, path string) (int, int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

// newTestApp builds an app on a fresh gallery in a temp dir, reading input
// and writing to the returned buffer. The returned close func is safe to call
// before cleanup runs it again.
func newTestApp(t *testing.T, gen lifecycle.Generator, input string, opts ...func(*config.Config)) (*app, *bytes.Buffer, func()) {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default(t.TempDir())
	for _, opt := range opts {
		opt(cfg)
	}
	logger := slog.New(slog.DiscardHandler)

	s, err := store.NewSQLiteStore(cfg.Database.Path, store.WithLogger(logger))
	require.NoError(t, err)

	a, err := assembleApp(ctx, cfg, s, gen, logger)
	require.NoError(t, err)

	var out bytes.Buffer
	a.in = bufio.NewReader(strings.NewReader(input))
	a.out = &out

	closeApp := sync.OnceFunc(a.close)
	t.Cleanup(closeApp)
	return a, &out, closeApp
}

func TestShell_RepeatedThumbsServedFromCache(t *testing.T) {
	dir := t.TempDir()
	a, _, _ := newTestApp(t, stubGenerator{}, "thumbs "+dir+"\nthumbs "+dir+"\n")
	ctx := context.Background()

	first, err := a.store.CreateSavedImage(ctx, pngBytes(t, 300, 200), "dunes")
	require.NoError(t, err)
	_, err = a.store.CreateSavedImage(ctx, pngBytes(t, 50, 50), "pebble")
	require.NoError(t, err)

	require.NoError(t, cmdShell(ctx, a, nil))

	hits, misses := a.thumbs.Stats()
	assert.Equal(t, int64(2), misses, "first pass renders each image")
	assert.Equal(t, int64(2), hits, "second pass in the same process reuses them")

	w, h := pngSize(t, filepath.Join(dir, first.ID+".png"))
	assert.Equal(t, 128, w)
	assert.Equal(t, 85, h)
}

func TestShell_VaryReplaceInvalidatesThumbnail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	before := filepath.Join(dir, "before.png")
	after := filepath.Join(dir, "after.png")

	a, _, _ := newTestApp(t, stubGenerator{image: pngBytes(t, 256, 128)}, "")
	src, err := a.store.CreateSavedImage(ctx, pngBytes(t, 256, 256), "tide pool")
	require.NoError(t, err)

	a.in = bufio.NewReader(strings.NewReader(strings.Join([]string{
		"thumb " + src.ID + " " + before,
		"vary -yes -policy replace " + src.ID,
		"thumb " + src.ID + " " + after,
	}, "\n") + "\n"))
	require.NoError(t, cmdShell(ctx, a, nil))

	w, h := pngSize(t, before)
	assert.Equal(t, w, h)
	w, h = pngSize(t, after)
	assert.Equal(t, 128, w)
	assert.Equal(t, 64, h, "thumbnail must show the replaced bytes")

	n, err := a.store.CountSavedImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "replace keeps a single gallery entry")
	assert.Equal(t, lifecycle.PolicyCreate, a.policy, "the -policy flag lasts one variation")
}

func TestShell_HelpUnknownAndQuit(t *testing.T) {
	ctx := context.Background()
	a, out, _ := newTestApp(t, stubGenerator{}, "\nbogus\nhelp\nshell\nrename 'Ada\nquit\nrename Zed\n")

	require.NoError(t, cmdShell(ctx, a, nil))

	text := out.String()
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "thumbs <dir>")
	assert.Contains(t, text, "already in the shell")
	assert.Contains(t, text, "unterminated ' quote")

	name, err := a.profiles.DisplayName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "User", name, "nothing after quit runs")
}

func TestShell_FailedCommandKeepsGoing(t *testing.T) {
	ctx := context.Background()
	a, out, _ := newTestApp(t, stubGenerator{}, "show missing\nrename Grace Hopper\n")

	require.NoError(t, cmdShell(ctx, a, nil))

	assert.Contains(t, out.String(), "Error:")
	name, err := a.profiles.DisplayName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", name)
}

func TestShell_CancelledContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, _, _ := newTestApp(t, stubGenerator{}, "list\n")

	assert.ErrorIs(t, cmdShell(ctx, a, nil), context.Canceled)
}

func TestGenerate_PrintsProgress(t *testing.T) {
	ctx := context.Background()
	a, out, _ := newTestApp(t, stubGenerator{image: pngBytes(t, 32, 32)}, "")

	require.NoError(t, cmdGenerate(ctx, a, []string{"-yes", "a", "red", "balloon"}))

	text := out.String()
	assert.Contains(t, text, "waiting for the image service")
	assert.Contains(t, text, "generation ready in")
	assert.Equal(t, 1, strings.Count(text, "waiting for the image service"))

	n, err := a.store.CountSavedImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReportProgress(t *testing.T) {
	started := lifecycle.Snapshot{
		Role:      lifecycle.RoleVariation,
		AttemptID: "mine",
		State:     lifecycle.Dispatched,
		StartedAt: time.Unix(100, 0),
	}
	finished := started
	finished.State = lifecycle.Failed
	finished.FailureKind = failure.ServiceFailure
	finished.FinishedAt = time.Unix(102, 500_000_000)
	other := started
	other.AttemptID = "theirs"

	events := make(chan lifecycle.Snapshot)
	tick := make(chan time.Time)
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportProgress(&out, events, started, tick)
	}()

	events <- other
	events <- started
	events <- started
	tick <- time.Unix(110, 0)
	events <- finished
	tick <- time.Unix(111, 0)
	close(events)
	<-done

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "waiting for the image service"), "other attempts and repeats are skipped")
	assert.Contains(t, text, "still waiting (10s)")
	assert.Contains(t, text, "variation failed after 2.5s: service_failure")
	assert.NotContains(t, text, "(11s)", "no waiting report once the call is done")
}

func TestClose_WritesMetricsOnlyAfterChanges(t *testing.T) {
	ctx := context.Background()
	textfile := filepath.Join(t.TempDir(), "imagegen.prom")
	withMetrics := func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = textfile
	}

	a, _, closeApp := newTestApp(t, stubGenerator{}, "", withMetrics)
	require.NoError(t, cmdList(ctx, a, nil))
	require.NoError(t, cmdProfile(ctx, a, nil))
	closeApp()
	assert.NoFileExists(t, textfile, "read-only commands leave the textfile alone")

	a, _, closeApp = newTestApp(t, stubGenerator{image: pngBytes(t, 16, 16)}, "", withMetrics)
	require.NoError(t, cmdGenerate(ctx, a, []string{"-yes", "lighthouse"}))
	closeApp()

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `imagegen_last_run_attempts{outcome="succeeded",role="generation"} 1`)
	assert.Contains(t, text, `imagegen_last_run_accepts{mode="create",role="generation"} 1`)
	assert.Contains(t, text, "imagegen_gallery_images 1")
	assert.Contains(t, text, "imagegen_last_run_timestamp_seconds")
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"   \n", nil},
		{"list", []string{"list"}},
		{"generate -yes a red  balloon\n", []string{"generate", "-yes", "a", "red", "balloon"}},
		{`rename "Grace Hopper"`, []string{"rename", "Grace Hopper"}},
		{`export '/tmp/my gallery.tar.zst'`, []string{"export", "/tmp/my gallery.tar.zst"}},
		{`show a\ b`, []string{"show", "a b"}},
		{`rename ""`, []string{"rename", ""}},
		{`say 'it\s'`, []string{"say", `it\s`}},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.line)
		require.NoError(t, err, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}

	_, err := splitArgs(`rename "Ada`)
	assert.Error(t, err)
}
