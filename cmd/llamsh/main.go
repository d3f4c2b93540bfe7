// llamsh wraps your interactive shell in a PTY and adds an AI mode: press
// ESC twice to talk to a local model that can read your scrollback and run
// commands inside the same live shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/urfave/cli/v2"

	"llamsh/internal/agent"
	"llamsh/internal/aimode"
	"llamsh/internal/config"
	"llamsh/internal/cwdtrack"
	"llamsh/internal/db"
	"llamsh/internal/discover"
	"llamsh/internal/logging"
	"llamsh/internal/moods"
	"llamsh/internal/ptyexec"
	"llamsh/internal/ptyshell"
	"llamsh/internal/render"
	"llamsh/internal/scrollback"
	"llamsh/internal/storage"
	"llamsh/internal/tools"
)

func main() {
	app := &cli.App{
		Name:  "llamsh",
		Usage: "your shell with a llama inside (double-tap ESC)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "port of a local inference server (shorthand for --base-url http://localhost:PORT)"},
			&cli.StringFlag{Name: "base-url", Usage: "base URL of an OpenAI-compatible server"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model name to request"},
			&cli.StringFlag{Name: "api-key", Usage: "API key (or LLAMSH_API_KEY)"},
			&cli.Float64Flag{Name: "temperature", Aliases: []string{"t"}, Value: -1, Usage: "sampling temperature"},
			&cli.StringFlag{Name: "mood", Usage: "persona preset: " + strings.Join(moods.Names(), ", ")},
			&cli.StringFlag{Name: "system-prompt", Usage: "override the system prompt"},
			&cli.StringFlag{Name: "resume", Aliases: []string{"r"}, Usage: "resume a session by id, or 'last'"},
			&cli.StringFlag{Name: "config", Value: config.DefaultConfigPath(), Usage: "config file path"},
			&cli.StringFlag{Name: "db", Usage: "history database path"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: runShell,
		Commands: []*cli.Command{
			{
				Name:   "sessions",
				Usage:  "list stored conversations",
				Action: listSessions,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "db", Usage: "history database path"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "how many sessions to show"},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfig(c *cli.Context) (config.Config, error) {
	file, err := config.LoadFile(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	flags := config.Flags{
		Port:         c.Int("port"),
		BaseURL:      c.String("base-url"),
		Model:        c.String("model"),
		APIKey:       c.String("api-key"),
		SystemPrompt: c.String("system-prompt"),
		Mood:         c.String("mood"),
		LogLevel:     c.String("log-level"),
		DBPath:       c.String("db"),
	}
	if t := c.Float64("temperature"); t >= 0 {
		flags.Temperature = &t
	}
	return config.Resolve(flags, file), nil
}

func runShell(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	mood, err := moods.Lookup(cfg.Mood)
	if err != nil {
		return err
	}

	logFile, err := logging.OpenLogFile(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("cannot open log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.NewLogger(logging.Options{
		Level: cfg.LogLevel, Writer: logFile, Component: "llamsh",
	})

	// No explicit server? Probe the usual local ports.
	if cfg.BaseURL == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		srv, derr := discover.Discover(ctx, nil, logger)
		cancel()
		if derr != nil {
			return derr
		}
		cfg.BaseURL = srv.BaseURL
		if cfg.Model == config.DefaultModel && srv.Model != "" {
			cfg.Model = srv.Model
		}
	}

	// Persistence is best-effort: a broken database disables history, it
	// does not take the shell down.
	var store *storage.Store
	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Warn("history disabled", "error", err)
	} else {
		defer db.Close(gdb)
		if store, err = storage.NewStore(gdb); err != nil {
			logger.Warn("history disabled", "error", err)
			store = nil
		}
	}

	systemPrompt := mood.Apply(strings.TrimSpace(cfg.SystemPrompt))
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		systemPrompt = mood.Apply(agent.DefaultSystemPrompt)
	}

	history, sessionID, savedCount, err := openHistory(c.String("resume"), store, systemPrompt, cfg.Model, logger)
	if err != nil {
		return err
	}

	renderer := render.New(os.Stdout)

	rows, cols := 24, 80
	if ws, werr := pty.GetsizeFull(os.Stdin); werr == nil {
		rows, cols = int(ws.Rows), int(ws.Cols)
	}
	capture := scrollback.NewCapture(rows, cols)

	var controller *aimode.Controller
	shell := ptyshell.NewShell(ptyshell.Options{
		Logger:      logger.With("component", "ptyshell"),
		EnterAIMode: func() { controller.Enter() },
		Shortcuts: map[byte]func(){
			'e': func() { controller.Explain() },
			'f': func() { controller.Fix() },
		},
	})
	shell.AddOutputObserver(capture.Feed)
	shell.AddResizeObserver(capture.Resize)

	if err := shell.Start(); err != nil {
		return err
	}
	defer shell.Cleanup()

	tracker := cwdtrack.New(shell.Pid())
	executor := ptyexec.New(ptyexec.Options{
		Shell:  shell,
		Cwd:    tracker.Cwd,
		Prompt: os.Stdout,
		Logger: logger.With("component", "ptyexec"),
	})

	confirm := func(prompt string) bool {
		renderer.Newline()
		renderer.Info(prompt)
		fmt.Fprint(os.Stdout, "  Apply? [y/N] ")
		answer := strings.ToLower(strings.TrimSpace(shell.ReadLine()))
		return answer == "y" || answer == "yes"
	}

	registry := tools.NewRegistry(logger.With("component", "tools"))
	registry.Register(tools.NewReadFile())
	registry.Register(tools.NewWriteFile(confirm))
	registry.Register(tools.NewListFiles())
	registry.Register(tools.NewBash(confirm))
	registry.Register(tools.NewShellExec(executor))

	client := agent.NewClient(agent.ClientOptions{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Logger:  logger.With("component", "client"),
	})
	orch := newOrchestrator(client, registry, history, cfg.Temperature, logger)

	controller = aimode.NewController(aimode.Options{
		Shell:   shell,
		Runner:  orch,
		Capture: capture,
		Render:  renderer,
		Logger:  logger.With("component", "aimode"),
		PTYBusy: executor.Busy,
		Persist: persister(store, sessionID, savedCount, logger),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGINT && controller.Active() {
				controller.Interrupt()
				continue
			}
			shell.Cleanup()
			os.Exit(0)
		}
	}()

	renderer.Banner(cfg.Model, cfg.BaseURL, mood.Name)
	if sessionID != "" {
		logger.Info("session", "id", sessionID, "resumed", savedCount > 0)
	}

	return shell.Run()
}

// openHistory builds the conversation history, resuming a stored session
// when requested.
func openHistory(resume string, store *storage.Store, systemPrompt, model string, logger *slog.Logger) (*agent.History, string, int, error) {
	resume = strings.TrimSpace(resume)

	if resume != "" {
		if store == nil {
			return nil, "", 0, fmt.Errorf("cannot resume: history database is unavailable")
		}
		sessionID := resume
		if resume == "last" {
			latest, err := store.LatestSessionID()
			if err != nil {
				return nil, "", 0, err
			}
			if latest == "" {
				return nil, "", 0, fmt.Errorf("no stored sessions to resume")
			}
			sessionID = latest
		}
		loaded, err := store.LoadSession(sessionID)
		if err != nil {
			return nil, "", 0, err
		}
		if len(loaded) == 0 {
			return nil, "", 0, fmt.Errorf("session %s is empty or does not exist", sessionID)
		}
		msgs := append([]agent.Message{{Role: "system", Content: systemPrompt}}, loaded...)
		logger.Info("resumed session", "id", sessionID, "messages", len(loaded))
		return agent.NewHistoryFromMessages(msgs), sessionID, len(loaded), nil
	}

	history := agent.NewHistory(systemPrompt)
	if store == nil {
		return history, "", 0, nil
	}
	sessionID, err := store.CreateSession(model)
	if err != nil {
		logger.Warn("history disabled", "error", err)
		return history, "", 0, nil
	}
	return history, sessionID, 0, nil
}

// persister saves the non-system tail of the history after each turn. The
// shell-context message is system-role and volatile, so it never hits disk
// and the saved counter stays aligned across context refreshes.
func persister(store *storage.Store, sessionID string, savedCount int, logger *slog.Logger) func([]agent.Message) {
	saved := savedCount
	return func(msgs []agent.Message) {
		if store == nil || sessionID == "" {
			return
		}
		durable := make([]agent.Message, 0, len(msgs))
		for _, m := range msgs {
			if m.Role == "system" {
				continue
			}
			durable = append(durable, m)
		}
		if err := store.SaveMessages(sessionID, durable, saved); err != nil {
			logger.Warn("failed to save session", "error", err)
			return
		}
		saved = len(durable)
	}
}

func newOrchestrator(client *agent.Client, registry *tools.Registry, history *agent.History, temperature *float64, logger *slog.Logger) *agent.Orchestrator {
	return agent.NewOrchestrator(
		temperatureClient{client: client, temperature: temperature},
		registry,
		history,
		logger.With("component", "agent"),
	)
}

// temperatureClient stamps the configured temperature onto every request.
type temperatureClient struct {
	client      *agent.Client
	temperature *float64
}

func (t temperatureClient) Stream(ctx context.Context, req agent.ChatRequest, fn func(agent.Delta)) error {
	if req.Temperature == nil {
		req.Temperature = t.temperature
	}
	return t.client.Stream(ctx, req, fn)
}

func listSessions(c *cli.Context) error {
	path := strings.TrimSpace(c.String("db"))
	if path == "" {
		path = config.DefaultDBPath()
	}
	gdb, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open history database: %w", err)
	}
	defer db.Close(gdb)

	store, err := storage.NewStore(gdb)
	if err != nil {
		return err
	}
	sessions, err := store.ListSessions(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-19s  %3d msgs  %-20s  %s\n",
			s.ID,
			s.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			s.MessageCount,
			s.Model,
			s.Title,
		)
	}
	return nil
}
