package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
)

const version = "1.0.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal cancels ctx; a second one, or a stuck shutdown, exits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received %v, shutting down (interrupt again to force)\n", sig)
		cancel()
		select {
		case <-sigChan:
			os.Exit(1)
		case <-time.After(2 * time.Minute):
			fmt.Fprintln(os.Stderr, "Graceful shutdown period exceeded. Forcing exit.")
			os.Exit(1)
		}
	}()

	if err := NewMain().Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Lookup, when set, supplies SITE_AUDITOR_* overrides applied after the
	// process environment.
	Lookup func(string) (string, bool)
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Run parses args and executes the selected command.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("site-auditor"),
		kong.Description("Crawl an e-commerce site, extract and analyze its product pages, and write audit reports."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'site-auditor --help' to see available commands")
	}
	switch args[0] {
	case "help", "--help", "-h":
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	deps.Log = newLogger(stderr, cli.LogLevel)
	if kongCtx.Command() != "version" {
		app, err := config.LoadAppConfig(cli.Config)
		if err != nil {
			return err
		}
		if m.Lookup != nil {
			if err := app.ApplyEnv(m.Lookup); err != nil {
				return err
			}
		}
		deps.AppWarnings, _ = app.Validate()
		deps.App = app
		deps.ConfigPath = cli.Config
	}

	return kongCtx.Run(deps)
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", level, err)
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
