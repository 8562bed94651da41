// Package notify carries best-effort audio cues to whatever plays them.
// Failures are logged and swallowed: a broken speaker must never fail a
// dispatch action.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
)

// Notifier announces a called ticket and plays a short tone. Both calls are
// fire-and-forget from the dispatcher's perspective.
type Notifier interface {
	Announce(ctx context.Context, text string)
	Tone(ctx context.Context)
}

type Config struct {
	Provider     string // "", "log", "noop", "webhook"
	WebhookURL   string
	WebhookToken string
	VoiceVolume  int // <= 0 disables announcements
	BeepVolume   int // <= 0 disables the tone
}

type provider interface {
	send(ctx context.Context, kind, text string) error
}

// Speaker gates announcements on the configured volumes and forwards them
// to the selected provider.
type Speaker struct {
	provider    provider
	voiceVolume int
	beepVolume  int
}

func New(cfg Config) *Speaker {
	return &Speaker{
		provider:    newProvider(cfg),
		voiceVolume: cfg.VoiceVolume,
		beepVolume:  cfg.BeepVolume,
	}
}

func (s *Speaker) Announce(ctx context.Context, text string) {
	if s.voiceVolume <= 0 {
		return
	}
	if err := s.provider.send(ctx, "speech", text); err != nil {
		log.Printf("announce failed: %v", err)
	}
}

func (s *Speaker) Tone(ctx context.Context) {
	if s.beepVolume <= 0 {
		return
	}
	if err := s.provider.send(ctx, "tone", ""); err != nil {
		log.Printf("tone failed: %v", err)
	}
}

func newProvider(cfg Config) provider {
	switch cfg.Provider {
	case "", "stub", "log":
		return logProvider{}
	case "noop":
		return noopProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			return logProvider{}
		}
		return webhookProvider{url: cfg.WebhookURL, token: cfg.WebhookToken, volume: cfg.VoiceVolume}
	default:
		return logProvider{}
	}
}

type logProvider struct{}

func (logProvider) send(ctx context.Context, kind, text string) error {
	log.Printf("notify %s: %s", kind, text)
	return nil
}

type noopProvider struct{}

func (noopProvider) send(ctx context.Context, kind, text string) error {
	return nil
}

// webhookProvider posts cues to a speaker bridge next to the display. The
// post runs on its own goroutine so a slow bridge cannot stall a dispatch
// action.
type webhookProvider struct {
	url    string
	token  string
	volume int
}

func (p webhookProvider) send(ctx context.Context, kind, text string) error {
	payload := map[string]interface{}{
		"kind":   kind,
		"text":   text,
		"volume": p.volume,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	go func() {
		if err := p.post(body); err != nil {
			log.Printf("notify %s delivery failed: %v", kind, err)
		}
	}()
	return nil
}

func (p webhookProvider) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("speaker bridge rejected request")
	}
	return nil
}
