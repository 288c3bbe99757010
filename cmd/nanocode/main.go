// Command nanocode is a minimal coding agent for the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/martinemde/nanocode/agentloop"
	"github.com/martinemde/nanocode/internal/repl"
	"github.com/martinemde/nanocode/unifiedllm"
)

var (
	configPath string
	verbose    bool
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "nanocode",
	Short: "Minimal coding agent",
	Long: `nanocode pairs a language model with a handful of local tools
(read, write, edit, glob, grep, bash) in an interactive prompt.

The backend is picked from the environment: GEMINI_API_KEY, then
OPENROUTER_API_KEY, then ANTHROPIC_API_KEY. MODEL overrides the model.

At the prompt, /c clears the conversation, /i shows system info and
/q or exit quits.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML session config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger returns a no-op logger unless a log file is given.
func newLogger(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// contextWindow picks the configured window, then the catalog's, then the
// package default.
func contextWindow(configured int, model string) int {
	if configured > 0 {
		return configured
	}
	if info := unifiedllm.GetModelInfo(model); info != nil && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return agentloop.DefaultContextWindow
}

// terminalSize reports whether w is a terminal and its width.
func terminalSize(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return true, 0
	}
	return true, width
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	logger, err := newLogger(logFile, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	environ := environMap(os.Environ())
	providerCfg, err := unifiedllm.ResolveProviderConfig(environ)
	if err != nil {
		return err
	}
	sessionCfg, err := agentloop.LoadSessionConfig(configPath, environ)
	if err != nil {
		return err
	}
	sessionCfg.ContextWindow = contextWindow(sessionCfg.ContextWindow, providerCfg.Model)

	client, err := unifiedllm.NewClientFromConfig(providerCfg,
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)))
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	sandbox := agentloop.NewSandbox(cwd, sessionCfg.CommandTimeout, agentloop.WithSandboxLogger(logger))
	env := agentloop.NewLocalExecutionEnvironment(cwd, sandbox)
	registry := agentloop.NewToolRegistry()
	agentloop.RegisterCoreTools(registry, env)
	info := agentloop.GatherSystemInfo(env)

	tty, width := terminalSize(out)
	renderer := repl.NewRenderer(out, tty, width)

	session := agentloop.NewSession(client, registry, agentloop.BuildSystemPrompt(info),
		agentloop.WithConfig(sessionCfg),
		agentloop.WithLogger(logger),
		agentloop.WithEventHandler(renderer.HandleEvent),
	)
	logger.Info("session started",
		zap.String("session_id", session.ID()),
		zap.Stringer("provider", providerCfg),
		zap.Strings("tools", registry.Names()),
	)

	renderer.Banner(providerCfg.Model, providerCfg.Backend.DisplayName(), cwd)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	return repl.New(session, renderer, info.String(), logger).Run(ctx, in, interrupts)
}
