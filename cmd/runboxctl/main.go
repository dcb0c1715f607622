package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/client"
	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/verdict"
)

var extLanguages = map[string]string{
	".c":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".java": "java",
	".py":   "python",
}

func main() {
	server := flag.String("server", envOr("RUNBOX_URL", "http://localhost:8080"), "runbox server address")
	lang := flag.String("lang", "", "language id; guessed from the file extension when empty")
	stdinPath := flag.String("stdin", "", "file to feed as standard input")
	timeLimit := flag.Duration("time-limit", 0, "run time limit, server default when zero")
	list := flag.Bool("languages", false, "list supported languages and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <source file>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*server)

	if *list {
		langs, err := c.Languages(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to list languages")
		}
		for _, l := range langs {
			fmt.Printf("%-8s %-8s compiled=%t aliases=%s\n", l.ID, l.Name, l.Compiled, strings.Join(l.Aliases, ","))
		}
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read source")
	}
	if *lang == "" {
		*lang = extLanguages[strings.ToLower(filepath.Ext(path))]
	}

	var stdin []byte
	switch *stdinPath {
	case "":
	case "-":
		stdin, err = io.ReadAll(os.Stdin)
	default:
		stdin, err = os.ReadFile(*stdinPath)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read stdin")
	}

	res, err := c.Execute(ctx, executor.ExecuteOptions{
		LanguageID:  *lang,
		SourceCode:  string(source),
		Stdin:       string(stdin),
		TimeLimitMs: int(*timeLimit / time.Millisecond),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("execution request failed")
	}

	fmt.Print(res.Stdout)
	if res.Details != "" {
		fmt.Fprintln(os.Stderr, res.Details)
	}
	logger.Info().
		Str("job_id", res.JobID).
		Str("outcome", string(res.Outcome)).
		Int64("time_ms", res.ExecutionTime.Milliseconds()).
		Msg("done")

	if res.Outcome != verdict.Success {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
