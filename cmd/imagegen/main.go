// ABOUTME: Entry point for the imagegen command line tool
// ABOUTME: Generates and varies images and manages the local gallery and profile

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/imagegen/internal/failure"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _
(_)_ __ ___   __ _  __ _  ___  __ _  ___ _ __
| | '_ ' _ \ / _' |/ _' |/ _ \/ _' |/ _ \ '_ \
| | | | | | | (_| | (_| |  __/ (_| |  __/ | | |
|_|_| |_| |_|\__,_|\__, |\___|\__, |\___|_| |_|
                   |___/      |___/
`

// getConfigPath returns the path to the imagegen config file.
// Priority: IMAGEGEN_CONFIG env var > XDG_CONFIG_HOME/imagegen/config.yaml > ~/.config/imagegen/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("IMAGEGEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "imagegen.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "imagegen", "config.yaml")
}

// getDataPath returns the path to the imagegen data directory.
// Priority: XDG_DATA_HOME/imagegen > ~/.local/share/imagegen
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "imagegen")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "shell":
		err = withApp(ctx, func(a *app) error { return cmdShell(ctx, a, args) })
	case "inspect":
		err = cmdInspect(args)
	case "init":
		err = cmdInit()
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		run, ok := galleryCommands[cmd]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
			printUsage()
			os.Exit(1)
		}
		err = withApp(ctx, func(a *app) error { return run(ctx, a, args) })
	}

	if err != nil {
		reportError(os.Stdout, err)
		os.Exit(1)
	}
}

// reportError prints err with the recovery hint for its kind.
func reportError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "Error: %v\n", err)
	if kind := failure.KindOf(err); kind != failure.Unknown && !errors.Is(err, context.Canceled) {
		color.New(color.FgHiBlack).Fprintf(w, "  %s: %s\n", kind, failure.Recovery(kind))
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: imagegen <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  generate [flags] <prompt>    Generate an image, then accept or discard it")
	fmt.Println("  vary [flags] <id|file>       Vary a gallery image or image file")
	fmt.Println("  list                         List saved images, newest first")
	fmt.Println("  show <id> [out]              Show an image's details, optionally write its bytes")
	fmt.Println("  thumb <id> [out]             Render a thumbnail PNG")
	fmt.Println("  thumbs <dir>                 Render thumbnails of the whole gallery into dir")
	fmt.Println("  delete <id>                  Delete a saved image")
	fmt.Println("  profile                      Show the local profile")
	fmt.Println("  rename <name>                Change the profile display name")
	fmt.Println("  export <path>                Write the gallery to a .tar.zst archive")
	fmt.Println("  inspect <path>               List the contents of an exported archive")
	fmt.Println("  shell                        Run commands interactively, keeping caches warm")
	fmt.Println("  init                         Write a starter config file")
	fmt.Println("  version                      Print the version")
	fmt.Println()
	yellow.Println("Generate/vary flags:")
	fmt.Println("  -yes                         Accept the result without asking")
	fmt.Println("  -out <path>                  Also write the result to a file")
	fmt.Println("  -policy create|replace       Accept policy for variations (vary only)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  IMAGEGEN_CONFIG              Config file path")
	fmt.Println("  OPENAI_API_KEY               API key when the config has none")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  imagegen generate \"a red balloon over a city\"")
	fmt.Println("  imagegen vary -policy replace 3f1c...")
	fmt.Println("  imagegen export ~/gallery.tar.zst")
	fmt.Println()
}
