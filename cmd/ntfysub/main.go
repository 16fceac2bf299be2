// Command ntfysub is a topic-subscription notification engine.
//
// It maintains one event stream per subscribed topic, persists and
// deduplicates incoming notifications, and serves push-delivery
// registrations for external applications.
//
// Usage:
//
//	ntfysub [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-db string         SQLite database path (default "ntfysub.db")
//	-base-url string   Default server for push registrations (default "https://ntfy.sh")
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-event-log string  CBOR event log file path (disabled if empty)
//	-interactive       Start the interactive shell
//
// Examples:
//
//	# Run with defaults, streaming previously stored subscriptions
//	ntfysub
//
//	# Interactive shell against a self-hosted server
//	ntfysub -base-url https://ntfy.example.org -interactive
//
//	# Debug logging plus a binary event log for later inspection
//	ntfysub -log-level debug -event-log events.cbor
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/binwiederhier/ntfy-android-sub001/cmd/ntfysub/interactive"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/distributor"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/model"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/service"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/store"
)

// Config holds the engine configuration. File values are overridden by
// flags set on the command line.
type Config struct {
	DB          string `yaml:"db"`
	BaseURL     string `yaml:"base_url"`
	LogLevel    string `yaml:"log_level"`
	EventLog    string `yaml:"event_log"`
	Interactive bool   `yaml:"-"`
}

func (c *Config) DefaultBaseURL() string {
	return c.BaseURL
}

var config = Config{
	DB:       "ntfysub.db",
	BaseURL:  "https://ntfy.sh",
	LogLevel: "info",
}

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.DB, "db", config.DB, "SQLite database path")
	flag.StringVar(&config.BaseURL, "base-url", config.BaseURL, "Default server for push registrations")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&config.EventLog, "event-log", config.EventLog, "CBOR event log file path")
	flag.BoolVar(&config.Interactive, "interactive", false, "Start the interactive shell")
}

func main() {
	flag.Parse()

	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		// Flags win over file values
		flag.Parse()
	}

	setupLogging(config.LogLevel)

	st, err := store.New(config.DB)
	if err != nil {
		slog.Error("Failed to open store", "db", config.DB, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger, closeLogger, err := buildLogger()
	if err != nil {
		slog.Error("Failed to open event log", "path", config.EventLog, "error", err)
		os.Exit(1)
	}
	defer closeLogger()

	display := &consoleDisplay{out: os.Stdout}
	svc := service.New(st, service.Options{
		DefaultBaseURL: config.BaseURL,
		Logger:         logger,
		Display:        display,
		Broadcast:      &logBroadcaster{},
		Outcomes:       &logOutcomes{},
	})

	if err := svc.Start(); err != nil {
		slog.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}
	defer svc.Stop()
	slog.Info("Engine started", "db", config.DB, "base_url", config.BaseURL)

	if config.Interactive {
		shell, err := interactive.New(svc, &config)
		if err != nil {
			slog.Error("Failed to start shell", "error", err)
			os.Exit(1)
		}
		// Route displayed notifications through the prompt-aware writer
		display.setOutput(shell.Stdout())
		shell.Run()
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())
}

func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, &config)
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// buildLogger assembles the engine event logger: always the slog
// adapter, plus the CBOR file logger when configured.
func buildLogger() (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(slog.Default())
	if config.EventLog == "" {
		return adapter, func() {}, nil
	}
	fileLogger, err := log.NewFileLogger(config.EventLog)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := fileLogger.Close(); err != nil {
			slog.Error("Failed to close event log", "error", err)
		}
	}
	return log.NewMultiLogger(adapter, fileLogger), closer, nil
}

// consoleDisplay prints notifications to stdout. Display runs on stream
// goroutines, so the writer is guarded.
type consoleDisplay struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *consoleDisplay) setOutput(out io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = out
}

func (c *consoleDisplay) Display(sub *model.Subscription, n model.Notification) {
	title := n.Title
	if title == "" {
		title = sub.DisplayTopic()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\n[%s] %s\n", title, n.Message)
}

// logBroadcaster logs notifications destined for registered external
// apps. A platform integration would deliver them over its push
// transport instead.
type logBroadcaster struct{}

func (b *logBroadcaster) Broadcast(sub *model.Subscription, n model.Notification, muted bool) {
	slog.Info("Broadcast notification",
		"app_id", sub.UpAppID, "topic", sub.Topic, "notification_id", n.ID, "muted", muted)
}

// logOutcomes logs push-registration outcomes.
type logOutcomes struct{}

func (o *logOutcomes) EndpointIssued(appID, connectorToken, endpoint string) {
	slog.Info("Registration endpoint issued", "app_id", appID, "endpoint", endpoint)
}

func (o *logOutcomes) RegistrationFailed(appID, connectorToken string, reason distributor.Reason) {
	slog.Warn("Registration failed", "app_id", appID, "reason", reason.String())
}

func (o *logOutcomes) Unregistered(appID, connectorToken string) {
	slog.Info("Registration removed", "app_id", appID)
}
