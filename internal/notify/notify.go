// Package notify delivers the "indexing daemon gave up" notification.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loykin/recollsup/internal/config"
)

const userAgent = "recollsup/1.0"

// Notification describes a permanent daemon failure.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, n Notification) error {
	lg := l.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg.Error(n.Title, "message", n.Message, "attempts", n.Attempts, "last_error", n.LastError)
	return nil
}

// Ntfy posts notifications to an ntfy topic URL.
type Ntfy struct {
	Endpoint string
	Token    string
	Priority string
	Client   *http.Client
}

func (n *Ntfy) Notify(ctx context.Context, note Notification) error {
	if n == nil || n.Endpoint == "" {
		return nil
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	body := note.Message
	if note.LastError != "" {
		body += "\nLast error: " + note.LastError
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Tags", "recoll,warning")
	if note.Title != "" {
		req.Header.Set("Title", note.Title)
	}
	if n.Priority != "" && n.Priority != "default" {
		req.Header.Set("Priority", n.Priority)
	}
	if n.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Latch remembers the most recent notification so it can be shown in
// status output until it is cleared by a manual start.
type Latch struct {
	mu   sync.Mutex
	last *Notification
	n    int
}

func (l *Latch) Notify(_ context.Context, note Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = &note
	l.n++
	return nil
}

// Last returns the latched notification, or nil.
func (l *Latch) Last() *Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Count returns how many notifications were received.
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Clear drops the latched notification.
func (l *Latch) Clear() {
	l.mu.Lock()
	l.last = nil
	l.mu.Unlock()
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, x := range m {
		if x == nil {
			continue
		}
		if err := x.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifier chain: always the logger, plus ntfy when a
// URL is configured.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) Notifier {
	chain := Multi{Log{Logger: logger}}
	if url := strings.TrimSpace(cfg.NtfyURL); url != "" {
		endpoint := strings.TrimRight(url, "/")
		if topic := strings.Trim(cfg.Topic, "/ "); topic != "" {
			endpoint += "/" + topic
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		chain = append(chain, &Ntfy{
			Endpoint: endpoint,
			Token:    cfg.Token,
			Priority: cfg.Priority,
			Client:   &http.Client{Timeout: timeout},
		})
	}
	return chain
}
