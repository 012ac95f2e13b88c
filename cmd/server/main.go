// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/avatarcall/internal/api"
	appcall "github.com/osa030/avatarcall/internal/app/call"
	"github.com/osa030/avatarcall/internal/infra/config"
	"github.com/osa030/avatarcall/internal/infra/logger"
	"github.com/osa030/avatarcall/internal/infra/metrics"
	"github.com/osa030/avatarcall/internal/infra/tavus"
)

var (
	app        = kingpin.New("avatarcall-server", "AI avatar video call server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check command
	checkCmd = app.Command("check", "Fetch the configured replica and persona and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// --verbose wins over the configured level
	if !*verbose && cfg.Log.Level != loggerConfig.Level {
		loggerConfig.Level = cfg.Log.Level
		if err := logger.Init(loggerConfig); err != nil {
			zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
		}
	}

	if command == checkCmd.FullCommand() {
		if err := check(cfg); err != nil {
			zlog.Error().Msgf("Check failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// newTavusClient creates the remote API client from config.
func newTavusClient(cfg *config.Config, m *metrics.Metrics) (*tavus.Client, error) {
	return tavus.New(tavus.Config{
		APIKey:  cfg.Tavus.APIKey,
		BaseURL: cfg.Tavus.BaseURL,
		Timeout: cfg.TavusTimeout(),
		Metrics: m,
	})
}

// newController creates the call controller from config.
func newController(cfg *config.Config, client appcall.API) (*appcall.Controller, error) {
	props := cfg.Conversation.Properties
	return appcall.NewController(client, appcall.Config{
		ReplicaID:             cfg.Tavus.ReplicaID,
		PersonaID:             cfg.Tavus.PersonaID,
		CallbackURL:           cfg.CallbackURL(),
		ConversationName:      cfg.Conversation.Name,
		ConversationalContext: cfg.Conversation.Context,
		CustomGreeting:        cfg.Conversation.Greeting,
		Properties: tavus.ConversationProperties{
			MaxCallDuration:          props.MaxCallDuration,
			ParticipantLeftTimeout:   props.LeftTimeout(),
			ParticipantAbsentTimeout: props.AbsentTimeout(),
			EnableRecording:          props.RecordingEnabled(),
			EnableClosedCaptions:     props.ClosedCaptionsEnabled(),
			ApplyGreenscreen:         props.GreenscreenApplied(),
			Language:                 props.Language,
		},
		ResetDelay:     cfg.ResetDelay(),
		RequestTimeout: cfg.RequestTimeout(),
	})
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	m := metrics.New()

	tavusClient, err := newTavusClient(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to create Tavus client: %w", err)
	}

	controller, err := newController(cfg, tavusClient)
	if err != nil {
		return fmt.Errorf("failed to create call controller: %w", err)
	}
	defer controller.Close()

	// Metrics follow every state broadcast
	controller.Subscribe(m)

	// Fetch replica and persona. Failures are shown to the user, not fatal.
	go func() {
		if err := controller.Init(context.Background()); err != nil {
			zlog.Warn().Msgf("Initial data not fully loaded: %v", err)
		}
	}()

	handler := api.NewRouter(api.RouterConfig{
		Controller:   controller,
		Metrics:      m,
		ControlToken: cfg.Server.ControlToken,
	})

	// Create server with h2c (HTTP/2 cleartext) support
	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s callback_url=%s", serverAddr, cfg.CallbackURL())
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close controller first to terminate watch streams
	controller.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// check fetches the configured replica and persona once.
func check(cfg *config.Config) error {
	client, err := newTavusClient(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TavusTimeout())
	defer cancel()

	replica, err := client.GetReplica(ctx, cfg.Tavus.ReplicaID)
	if err != nil {
		return fmt.Errorf("replica %s: %w", cfg.Tavus.ReplicaID, err)
	}
	fmt.Printf("Replica: %s (%s) status=%s\n", replica.Name, replica.ID, replica.Status)

	persona, err := client.GetPersona(ctx, cfg.Tavus.PersonaID)
	if err != nil {
		return fmt.Errorf("persona %s: %w", cfg.Tavus.PersonaID, err)
	}
	fmt.Printf("Persona: %s (%s)\n", persona.Name, persona.ID)
	fmt.Printf("Callback URL: %s\n", cfg.CallbackURL())

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
