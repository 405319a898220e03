// ABOUTME: Interactive shell that runs gallery commands against one open app
// ABOUTME: The store, controller and thumbnail cache stay warm between commands

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/fatih/color"
)

// appCommand is a subcommand that needs the gallery and controller.
type appCommand func(ctx context.Context, a *app, args []string) error

// galleryCommands are runnable both from the command line and in the shell.
var galleryCommands = map[string]appCommand{
	"generate": cmdGenerate,
	"gen":      cmdGenerate,
	"vary":     cmdVary,
	"list":     cmdList,
	"ls":       cmdList,
	"show":     cmdShow,
	"thumb":    cmdThumb,
	"thumbs":   cmdThumbs,
	"delete":   cmdDelete,
	"rm":       cmdDelete,
	"profile":  cmdProfile,
	"rename":   cmdRename,
	"export":   cmdExport,
	"inspect": func(_ context.Context, _ *app, args []string) error {
		return cmdInspect(args)
	},
}

// cmdShell reads commands from the app's input until EOF or quit. A failed
// command is reported and the shell keeps going; cancellation ends it.
func cmdShell(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: imagegen shell")
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(a.out, "imagegen shell (Ctrl+D to exit, \"help\" for commands)\n\n")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		green.Fprint(a.out, "> ")
		line, err := a.in.ReadString('\n')
		if err != nil && line == "" {
			// EOF (Ctrl+D) or error
			fmt.Fprintln(a.out)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		words, err := splitArgs(line)
		if err != nil {
			yellow.Fprintf(a.out, "  %v\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "quit", "exit":
			return nil
		case "help":
			printShellHelp(a.out)
			continue
		case "shell":
			yellow.Fprintf(a.out, "  already in the shell\n")
			continue
		}

		cmd, ok := galleryCommands[words[0]]
		if !ok {
			yellow.Fprintf(a.out, "  unknown command %q, try \"help\"\n", words[0])
			continue
		}
		if err := cmd(ctx, a, words[1:]); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			reportError(a.out, err)
		}
	}
}

func printShellHelp(w io.Writer) {
	fmt.Fprintln(w, "  generate [flags] <prompt>   vary [flags] <id|file>")
	fmt.Fprintln(w, "  list                        show <id> [out]")
	fmt.Fprintln(w, "  thumb <id> [out]            thumbs <dir>")
	fmt.Fprintln(w, "  delete <id>                 profile")
	fmt.Fprintln(w, "  rename <name>               export <path>")
	fmt.Fprintln(w, "  inspect <path>              quit")
}

// splitArgs splits a shell line into words. Single and double quotes group
// words and a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range strings.TrimSpace(line) {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				args = append(args, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		word.WriteRune('\\')
	}
	if inWord {
		args = append(args, word.String())
	}
	return args, nil
}
