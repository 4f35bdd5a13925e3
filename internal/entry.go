// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/rferrer/taskpilot/internal/api"
	"github.com/rferrer/taskpilot/internal/assistant"
	"github.com/rferrer/taskpilot/internal/calendar"
	"github.com/rferrer/taskpilot/internal/convlog"
	"github.com/rferrer/taskpilot/internal/index"
	"github.com/rferrer/taskpilot/internal/mailbox"
	"github.com/rferrer/taskpilot/internal/mcpserver"
	"github.com/rferrer/taskpilot/internal/oracle"
	"github.com/rferrer/taskpilot/internal/sse"
	"github.com/rferrer/taskpilot/internal/storage"
	"github.com/rferrer/taskpilot/internal/taskstore"
)

// core bundles the components shared by every run mode.
type core struct {
	store       *taskstore.Store
	db          *index.DB
	oracle      *oracle.Client
	convlog     *convlog.Log
	interpreter *assistant.Interpreter
	ingestor    *mailbox.Ingestor // nil when no mailbox is configured
	logger      *slog.Logger
}

func (c *core) close() {
	if c.db != nil {
		_ = c.db.Close()
	}
}

// mailRunner adapts the optional ingestor to the interfaces the assistant
// and API expect, so a nil ingestor stays a nil interface.
func (c *core) mailRunner() assistant.MailRunner {
	if c.ingestor == nil {
		return nil
	}
	return c.ingestor
}

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildCore initializes storage, index, oracle, mail and the interpreter
// from configuration.
func buildCore(ctx context.Context, cfg *Config, logger *slog.Logger) (*core, error) {
	if err := os.MkdirAll(cfg.Tasks.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}

	files, err := storage.NewFS(cfg.Tasks.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	store := taskstore.New(files, db)
	if err := store.LoadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	oracleClient := oracle.New(oracle.Config{
		APIKey:      cfg.Oracle.APIKey,
		BaseURL:     cfg.Oracle.BaseURL,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		TimeoutMS:   cfg.Oracle.TimeoutMS,
	})

	log := convlog.New(cfg.Tasks.ConversationLog)

	var ingestor *mailbox.Ingestor
	if cfg.Mail.Enabled() {
		var sink mailbox.CalendarSink
		if cfg.Calendar.Enabled {
			cal, calErr := calendar.NewClient(ctx, calendar.Config{
				CredentialsFile: cfg.Calendar.CredentialsFile,
				TokenFile:       cfg.Calendar.TokenFile,
				CalendarID:      cfg.Calendar.CalendarID,
			}, logger)
			if calErr != nil {
				logger.Warn("calendar disabled", slog.String("error", calErr.Error()))
			} else {
				sink = cal
			}
		}
		fetcher := mailbox.NewIMAPFetcher(mailbox.IMAPConfig{
			Address:  cfg.Mail.Address,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			Folder:   cfg.Mail.Folder,
			Limit:    cfg.Mail.Limit,
		})
		ingestor = mailbox.NewIngestor(fetcher, oracleClient, store, sink, logger)
	}

	c := &core{
		store:    store,
		db:       db,
		oracle:   oracleClient,
		convlog:  log,
		ingestor: ingestor,
		logger:   logger,
	}
	c.interpreter = assistant.New(store, oracleClient, c.mailRunner(), log, logger)
	return c, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("tasks_path", cfg.Tasks.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("mail_enabled", cfg.Mail.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	// SSE broker, fed by store change events.
	broker := sse.NewBroker()
	defer broker.Close()
	c.store.SetOnChange(func(kind, id string) {
		broker.PublishTaskEvent(kind, id)
	})

	h := api.NewHandler(c.store, c.interpreter, apiMail(c), c.db)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the task directory for external edits.
	g.Go(func() error {
		if err := c.store.Watch(gCtx, cfg.Tasks.Path, logger); err != nil {
			logger.Warn("task watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunChat runs the interactive terminal assistant.
func RunChat(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(app.config)
	c, err := buildCore(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	fmt.Println("Taskpilot ready. Type 'exit' to quit, 'summary' for conversation history.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		case strings.EqualFold(line, "summary"):
			fmt.Println(c.convlog.Summary())
		default:
			fmt.Println(c.interpreter.Handle(ctx, line))
		}
	}
	return scanner.Err()
}

// RunFetch runs a single mail ingestion pass and prints the summary.
func RunFetch(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(app.config)
	c, err := buildCore(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if c.ingestor == nil {
		return fmt.Errorf("no mailbox configured")
	}
	res, err := c.ingestor.Run(ctx)
	if err != nil {
		return fmt.Errorf("mail ingestion: %w", err)
	}
	fmt.Println(res.Summary())
	return nil
}

// RunMCP starts the MCP stdio server.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	// MCP speaks JSON-RPC on stdout, so logs must go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	c, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	return mcpserver.New(c.store, c.db).ServeStdio()
}

// apiMail converts the core's optional ingestor for the API layer without
// producing a typed-nil interface.
func apiMail(c *core) api.MailRunner {
	if c.ingestor == nil {
		return nil
	}
	return c.ingestor
}
