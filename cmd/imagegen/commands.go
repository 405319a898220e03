// ABOUTME: Subcommand implementations for the imagegen CLI
// ABOUTME: Generation/variation with accept or discard, gallery browsing, profile and archives

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/imagegen/internal/archive"
	"github.com/2389/imagegen/internal/config"
	"github.com/2389/imagegen/internal/failure"
	"github.com/2389/imagegen/internal/imageconv"
	"github.com/2389/imagegen/internal/lifecycle"
)

// attemptFlags are shared by generate and vary.
type attemptFlags struct {
	yes    bool
	out    string
	policy string
}

func parseAttemptFlags(name string, args []string, withPolicy bool) (*attemptFlags, []string, error) {
	f := &attemptFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&f.yes, "yes", false, "accept the result without asking")
	fs.StringVar(&f.out, "out", "", "also write the result to this file")
	if withPolicy {
		fs.StringVar(&f.policy, "policy", "", "accept policy: create or replace")
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, fs.Args(), nil
}

func cmdGenerate(ctx context.Context, a *app, args []string) error {
	flags, rest, err := parseAttemptFlags("generate", args, false)
	if err != nil {
		return err
	}
	prompt := strings.Join(rest, " ")

	name, err := a.profiles.DisplayName(ctx)
	if err != nil {
		return err
	}
	color.HiBlack("  %s, generating %q\n", name, prompt)
	a.touched = true

	snap, err := runAttempt(ctx, a, lifecycle.RoleGeneration, func() (lifecycle.Snapshot, error) {
		return a.controller.StartGeneration(ctx, prompt)
	})
	if err != nil {
		return err
	}
	return resolve(ctx, a, snap, flags)
}

func cmdVary(ctx context.Context, a *app, args []string) error {
	flags, rest, err := parseAttemptFlags("vary", args, true)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: imagegen vary [flags] <id|file>")
	}

	if flags.policy != "" {
		policy, err := lifecycle.ParseAcceptPolicy(flags.policy)
		if err != nil {
			return failure.New(failure.InvalidInput, "vary", err)
		}
		// The flag applies to this variation only; the shell keeps going
		// with the configured policy.
		prev := a.policy
		a.withPolicy(policy)
		defer a.withPolicy(prev)
	}

	src, err := loadSource(ctx, a, rest[0])
	if err != nil {
		return err
	}
	if err := imageconv.Validate(src.Image); err != nil {
		return failure.New(failure.InvalidInput, "vary", err)
	}
	a.touched = true

	snap, err := runAttempt(ctx, a, lifecycle.RoleVariation, func() (lifecycle.Snapshot, error) {
		return a.controller.StartVariation(ctx, src)
	})
	if err != nil {
		return err
	}
	return resolve(ctx, a, snap, flags)
}

// loadSource reads ref as a file when one exists, otherwise as a gallery ID.
func loadSource(ctx context.Context, a *app, ref string) (lifecycle.Source, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return lifecycle.Source{}, fmt.Errorf("reading %s: %w", ref, err)
		}
		return lifecycle.Source{Image: data}, nil
	}

	img, err := a.store.GetSavedImage(ctx, ref)
	if err != nil {
		return lifecycle.Source{}, err
	}
	return lifecycle.Source{
		Image:        img.ImageBytes,
		Prompt:       img.Prompt,
		SavedImageID: img.ID,
	}, nil
}

// progressInterval is how often a long wait reports that it is still going.
const progressInterval = 5 * time.Second

// runAttempt starts an attempt, prints its transitions while it runs and
// returns the snapshot it finished in.
func runAttempt(ctx context.Context, a *app, role lifecycle.Role, start func() (lifecycle.Snapshot, error)) (lifecycle.Snapshot, error) {
	started, err := start()
	if err != nil {
		return started, err
	}

	// The subscription replays the latest snapshot, so a call that finished
	// before Subscribe still reports its outcome.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, subID := a.controller.Subscribe(subCtx, role)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		reportProgress(a.out, events, started, ticker.C)
	}()

	snap, err := a.controller.Await(ctx, role)
	a.controller.Unsubscribe(role, subID)
	<-reported

	if err != nil {
		color.Yellow("  cancelled; letting the in-flight request finish\n")
		return snap, err
	}
	if snap.AttemptID != started.AttemptID {
		return snap, failure.Errorf(failure.InvalidTransition, string(role), "attempt %s was replaced", started.AttemptID)
	}
	if snap.State == lifecycle.Failed {
		return snap, snap.Failure
	}
	return snap, nil
}

// reportProgress prints the started attempt's state, then each new state it
// moves through until events closes. Snapshots of other attempts and repeats
// are skipped. Every tick while the call is outstanding prints the time
// waited so far.
func reportProgress(w io.Writer, events <-chan lifecycle.Snapshot, started lifecycle.Snapshot, tick <-chan time.Time) {
	dim := color.New(color.FgHiBlack)
	last := started.State
	printTransition(w, started)

	for {
		select {
		case snap, ok := <-events:
			if !ok {
				return
			}
			if snap.AttemptID != started.AttemptID || snap.State == last {
				continue
			}
			last = snap.State
			printTransition(w, snap)
		case now := <-tick:
			if last == lifecycle.Dispatched {
				dim.Fprintf(w, "  still waiting (%s)\n", now.Sub(started.StartedAt).Round(time.Second))
			}
		}
	}
}

func printTransition(w io.Writer, snap lifecycle.Snapshot) {
	switch snap.State {
	case lifecycle.Dispatched:
		color.New(color.FgHiBlack).Fprintf(w, "  waiting for the image service...\n")
	case lifecycle.Succeeded:
		color.New(color.FgGreen).Fprintf(w, "  ✓ %s ready in %s\n", snap.Role, attemptDuration(snap))
	case lifecycle.Failed:
		color.New(color.FgRed).Fprintf(w, "  ✗ %s failed after %s: %s\n", snap.Role, attemptDuration(snap), snap.FailureKind)
	default:
		color.New(color.FgHiBlack).Fprintf(w, "  %s\n", snap.State)
	}
}

func attemptDuration(snap lifecycle.Snapshot) time.Duration {
	return snap.FinishedAt.Sub(snap.StartedAt).Round(100 * time.Millisecond)
}

// resolve shows a Succeeded result and accepts or discards it.
func resolve(ctx context.Context, a *app, snap lifecycle.Snapshot, flags *attemptFlags) error {
	describeResult(snap.Result)

	if flags.out != "" {
		if err := os.WriteFile(flags.out, snap.Result, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", flags.out, err)
		}
		color.Green("  ✓ Wrote %s\n", flags.out)
	}

	if !flags.yes && !confirm(a.in, "Save to gallery?", false) {
		if _, err := a.controller.Discard(snap.Role); err != nil {
			return err
		}
		color.HiBlack("  discarded\n")
		return nil
	}

	for {
		committed, err := a.controller.Accept(ctx, snap.Role)
		if err == nil {
			if committed.SourceID != "" && committed.SavedImageID == committed.SourceID {
				// Replaced in place; the cached thumbnail shows the old bytes.
				a.thumbs.Invalidate(committed.SavedImageID)
				color.Green("  ✓ Replaced %s\n", committed.SavedImageID)
				return nil
			}
			color.Green("  ✓ Saved %s\n", committed.SavedImageID)
			return nil
		}
		if !errors.Is(err, failure.ErrPersistFailure) || flags.yes {
			return err
		}
		color.Red("  save failed: %v\n", err)
		if !confirm(a.in, "Retry?", true) {
			if _, derr := a.controller.Discard(snap.Role); derr != nil {
				return derr
			}
			color.HiBlack("  discarded\n")
			return nil
		}
	}
}

func describeResult(data []byte) {
	format := imageconv.Sniff(data)
	if img, err := imageconv.Decode(data); err == nil {
		b := img.Bounds()
		fmt.Printf("  %s %dx%d, %s\n", format, b.Dx(), b.Dy(), humanBytes(len(data)))
		return
	}
	fmt.Printf("  %s, %s\n", format, humanBytes(len(data)))
}

func cmdList(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: imagegen list")
	}

	images, err := a.store.ListSavedImages(ctx)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		color.HiBlack("  gallery is empty\n")
		return nil
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  %-36s  %-16s  %-10s  %8s  %s\n", "ID", "CREATED", "TYPE", "SIZE", "PROMPT")
	for _, img := range images {
		fmt.Printf("  %-36s  %-16s  %-10s  %8s  %s\n",
			img.ID,
			img.CreatedAt.Local().Format("2006-01-02 15:04"),
			img.MIMEType,
			humanBytes(len(img.ImageBytes)),
			truncate(img.Prompt, 60),
		)
	}
	fmt.Println()
	color.HiBlack("  %d image(s)\n", len(images))
	return nil
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: imagegen show <id> [out]")
	}

	img, err := a.store.GetSavedImage(ctx, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("  Saved Image")
	cyan.Println("  -----------")
	fmt.Printf("  ID:       %s\n", img.ID)
	fmt.Printf("  Prompt:   %s\n", img.Prompt)
	fmt.Printf("  Created:  %s\n", img.CreatedAt.Local().Format(time.RFC1123))
	if !img.UpdatedAt.Equal(img.CreatedAt) {
		fmt.Printf("  Replaced: %s\n", img.UpdatedAt.Local().Format(time.RFC1123))
	}
	describeResult(img.ImageBytes)

	if len(args) == 2 {
		if err := os.WriteFile(args[1], img.ImageBytes, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", args[1], err)
		}
		color.Green("  ✓ Wrote %s\n", args[1])
	}
	return nil
}

func cmdThumb(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: imagegen thumb <id> [out]")
	}

	img, err := a.store.GetSavedImage(ctx, args[0])
	if err != nil {
		return err
	}
	thumb, err := a.thumbs.Get(img)
	if err != nil {
		return err
	}

	out := img.ID + "-thumb.png"
	if len(args) == 2 {
		out = args[1]
	}
	if err := os.WriteFile(out, thumb.PNG, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	hits, misses := a.thumbs.Stats()
	a.logger.Debug("thumbnail cache", "hits", hits, "misses", misses)
	color.Green("  ✓ Wrote %s (%dx%d)\n", out, thumb.Width, thumb.Height)
	return nil
}

// cmdThumbs renders a thumbnail of every gallery image into dir. Running it
// again in the same shell serves unchanged images from the cache.
func cmdThumbs(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: imagegen thumbs <dir>")
	}
	dir := args[0]

	images, err := a.store.ListSavedImages(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	hitsBefore, _ := a.thumbs.Stats()
	var written int
	for _, img := range images {
		thumb, err := a.thumbs.Get(img)
		if err != nil {
			color.Yellow("  skipped %s: %v\n", img.ID, err)
			continue
		}
		out := filepath.Join(dir, img.ID+".png")
		if err := os.WriteFile(out, thumb.PNG, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		written++
	}
	hits, misses := a.thumbs.Stats()

	a.logger.Debug("thumbnail cache", "hits", hits, "misses", misses)
	color.Green("  ✓ Wrote %d thumbnail(s) to %s, %d from cache\n", written, dir, hits-hitsBefore)
	return nil
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: imagegen delete <id>")
	}

	if err := a.store.DeleteSavedImage(ctx, args[0]); err != nil {
		return err
	}
	a.thumbs.Invalidate(args[0])
	if n, err := a.store.CountSavedImages(ctx); err == nil {
		a.metrics.SetGalleryImages(n)
		a.touched = true
	}

	color.Green("  ✓ Deleted %s\n", args[0])
	return nil
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: imagegen profile")
	}

	p, err := a.profiles.Profile(ctx)
	if err != nil {
		return err
	}
	n, err := a.store.CountSavedImages(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("  Profile")
	cyan.Println("  -------")
	fmt.Printf("  Display Name: %s\n", p.DisplayName)
	fmt.Printf("  ID:           %s\n", p.ID)
	fmt.Printf("  Created:      %s\n", p.CreatedAt.Local().Format("Jan 02, 2006"))
	fmt.Printf("  Images:       %d\n", n)
	fmt.Printf("  Config:       %s\n", a.configPath)
	fmt.Printf("  Gallery:      %s\n", a.cfg.Database.Path)
	return nil
}

func cmdRename(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: imagegen rename <name>")
	}

	p, err := a.profiles.Rename(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	color.Green("  ✓ Display name is now %q\n", p.DisplayName)
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: imagegen export <path>")
	}

	name, err := a.profiles.DisplayName(ctx)
	if err != nil {
		return err
	}
	m, err := archive.ExportFile(ctx, a.store, name, args[0])
	if err != nil {
		return err
	}

	color.Green("  ✓ Exported %d image(s) to %s\n", len(m.Images), args[0])
	return nil
}

func cmdInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: imagegen inspect <path>")
	}

	m, images, err := archive.ReadFile(args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  Archive v%d of %s, exported %s\n", m.Version, m.Profile, m.ExportedAt.Local().Format(time.RFC1123))
	var total int
	for _, e := range m.Images {
		total += len(images[e.ID])
		fmt.Printf("  %-36s  %-10s  %8s  %s\n", e.ID, e.MIMEType, humanBytes(e.Size), truncate(e.Prompt, 50))
	}
	color.HiBlack("  %d image(s), %s\n", len(m.Images), humanBytes(total))
	return nil
}

func cmdInit() error {
	path := getConfigPath()
	if err := config.WriteDefault(path, getDataPath()); err != nil {
		return err
	}

	color.Green("  ✓ Created config: %s\n", path)
	fmt.Println()
	color.Yellow("  Ready to go:\n")
	fmt.Println("    export OPENAI_API_KEY=sk-...")
	fmt.Println("    imagegen generate \"a red balloon\"")
	fmt.Println()
	return nil
}

func confirm(reader *bufio.Reader, question string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	fmt.Printf("  %s [%s]: ", question, hint)

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultYes
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultYes
	}
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
