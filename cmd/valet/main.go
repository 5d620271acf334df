// Valet - voice assistant client for Daily Bots with tool use
// Connects a session, prints the live transcript, and exposes device
// capabilities (fact memory, app launcher, calendar, code sandbox) as
// tools the model can call.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/openvalet/go-valet/internal/config"
	"github.com/openvalet/go-valet/internal/log"
	"github.com/openvalet/go-valet/pkg/apps"
	"github.com/openvalet/go-valet/pkg/calendar"
	"github.com/openvalet/go-valet/pkg/facts"
	"github.com/openvalet/go-valet/pkg/rtvi"
	"github.com/openvalet/go-valet/pkg/sandbox"
	"github.com/openvalet/go-valet/pkg/session"
	"github.com/openvalet/go-valet/pkg/tools"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

func parseFlags() config.Config {
	cfg := config.DefaultConfig()

	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	backendURL := flag.String("backend", "", "Session negotiation endpoint (overrides VALET_BACKEND_URL)")
	dataDir := flag.String("data-dir", "", "Directory for persisted state (overrides VALET_DATA_DIR)")
	flag.Parse()

	cfg.LogLevel = *logLevel
	cfg.LoadEnv()
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	return cfg
}

func run(cfg config.Config) error {
	memory, err := facts.New(filepath.Join(cfg.DataDir, "facts.json"))
	if err != nil {
		return fmt.Errorf("failed to open fact memory: %w", err)
	}
	defer memory.Close()

	registry := tools.NewRegistry()

	providers := []tools.Provider{
		memory,
		apps.Discover(apps.ExecLauncher{}, apps.DefaultDirs()...),
		sandbox.New(),
	}

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		google, err := calendar.NewGoogleProvider(calendar.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			TokenPath:    filepath.Join(cfg.DataDir, "google_token.json"),
		})
		if err != nil {
			return fmt.Errorf("failed to set up calendar: %w", err)
		}
		if !google.IsAuthenticated() {
			log.Warn("calendar: not authenticated; visit the consent URL to enable list_calendar",
				"url", google.AuthURL())
		}
		providers = append(providers, calendar.NewReader(google))
	} else {
		log.Info("calendar: disabled (GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET not set)")
	}

	if err := registry.RegisterAll(providers...); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	ended := make(chan struct{})

	manager := session.NewManager(session.ManagerConfig{
		Registry:  registry,
		Facts:     memory,
		Connect:   rtvi.Factory,
		OpenAIKey: cfg.OpenAIKey,
		OnEnd:     func() { close(ended) },
	})

	for _, tool := range manager.BuiltinTools() {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register builtin tool: %w", err)
		}
	}

	printer := newChatPrinter(manager)
	manager.Subscribe(printer.update)

	// The system prompt embeds the stored fact keywords, so the session
	// must not start until the fact store's initial load has finished.
	loaded := make(chan struct{})
	memory.OnLoaded(func() { close(loaded) })
	<-loaded

	manager.Start(cfg.BackendURL, cfg.BotsAPIKey, session.DefaultInitOptions(), session.DefaultRuntimeOptions())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ended:
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
		manager.Stop()
		<-ended
	}

	if errs := manager.Snapshot().Errors; len(errs) > 0 {
		return fmt.Errorf("session ended with errors: %s", errs[len(errs)-1])
	}

	if err := memory.Flush(); err != nil {
		return fmt.Errorf("failed to flush fact memory: %w", err)
	}
	return nil
}

// chatPrinter writes chat log entries to stdout once they can no longer
// change: the tail entry is held back while transcript merging may still
// rewrite it.
type chatPrinter struct {
	manager *session.Manager

	mu      sync.Mutex
	printed int
}

func newChatPrinter(manager *session.Manager) *chatPrinter {
	return &chatPrinter{manager: manager}
}

func (p *chatPrinter) update() {
	snap := p.manager.Snapshot()
	entries := snap.ChatLog
	flush := snap.State == session.StateEnded

	p.mu.Lock()
	defer p.mu.Unlock()

	for ; p.printed < len(entries); p.printed++ {
		entry := entries[p.printed]
		if !flush && p.printed == len(entries)-1 && !settled(entry) {
			return
		}
		switch e := entry.(type) {
		case session.UserEntry:
			fmt.Printf("you: %s\n", e.Text)
		case session.BotEntry:
			fmt.Printf("bot: %s\n", e.Text)
		case session.FunctionCallEntry:
			fmt.Printf("[tool] %s\n", e.Name)
		}
	}
}

// settled reports whether a tail entry is immune to transcript merging.
func settled(entry session.Entry) bool {
	switch e := entry.(type) {
	case session.UserEntry:
		return e.Final
	case session.BotEntry:
		return false
	}
	return true
}
