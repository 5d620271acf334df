package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/openvalet/go-valet/internal/log"
)

// GoogleConfig configures the Google Calendar provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "http://localhost:8080/auth/callback"
	TokenPath    string // Path to the stored token (default: ~/.valet/google_token.json)
}

// GoogleProvider reads events from the user's primary Google calendar.
type GoogleProvider struct {
	config    *oauth2.Config
	tokenPath string

	mu      sync.RWMutex
	token   *oauth2.Token
	service *gcal.Service
}

// NewGoogleProvider creates the provider and, when a stored token exists,
// initializes the calendar service from it.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}

	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/auth/callback"
	}

	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".valet", "google_token.json")
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{gcal.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	p := &GoogleProvider{
		config:    oauthConfig,
		tokenPath: cfg.TokenPath,
	}

	if err := p.loadToken(); err == nil {
		if err := p.initService(); err != nil {
			log.Warn("calendar: stored token rejected, re-auth needed", "error", err)
			p.token = nil
		}
	}

	return p, nil
}

// IsAuthenticated returns true if the provider has a usable token.
func (p *GoogleProvider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.service != nil
}

// AuthURL returns the OAuth2 authorization URL for user consent.
func (p *GoogleProvider) AuthURL() string {
	return p.config.AuthCodeURL("valet-state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code for a token and brings
// the service up.
func (p *GoogleProvider) HandleCallback(code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	if err := p.saveToken(); err != nil {
		log.Warn("calendar: failed to save token", "error", err)
	}

	return p.initService()
}

// Disconnect clears the authentication and removes the stored token.
func (p *GoogleProvider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = nil
	p.service = nil

	if err := os.Remove(p.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Events implements Provider against the primary calendar.
func (p *GoogleProvider) Events(ctx context.Context, from time.Time, max int) ([]Event, error) {
	p.mu.RLock()
	service := p.service
	p.mu.RUnlock()

	if service == nil {
		return nil, fmt.Errorf("not authenticated - please connect Google Calendar first")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := service.Events.List("primary").
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(int64(max)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]Event, 0, len(result.Items))
	for _, item := range result.Items {
		start, ok := eventTime(item.Start)
		if !ok {
			continue
		}
		end, _ := eventTime(item.End)
		events = append(events, Event{
			ID:         item.Id,
			Title:      item.Summary,
			Start:      start,
			End:        end,
			CalendarID: "primary",
		})
	}
	return events, nil
}

// eventTime resolves a calendar timestamp, handling all-day events which
// carry only a date.
func eventTime(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, time.Local)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func (p *GoogleProvider) loadToken() error {
	data, err := os.ReadFile(p.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("failed to parse token file: %w", err)
	}

	p.mu.Lock()
	p.token = &token
	p.mu.Unlock()
	return nil
}

func (p *GoogleProvider) saveToken() error {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()

	if token == nil {
		return fmt.Errorf("no token to save")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.tokenPath), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(p.tokenPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (p *GoogleProvider) initService() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		return fmt.Errorf("no token available")
	}

	ctx := context.Background()
	httpClient := p.config.Client(ctx, p.token)

	service, err := gcal.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	p.service = service
	return nil
}
