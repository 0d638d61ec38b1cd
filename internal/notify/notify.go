// Package notify delivers lifecycle notifications to the two chat output
// channels: the public server-status channel and the developer channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Channel names an output channel.
type Channel string

const (
	ChannelStatus Channel = "status"
	ChannelDev    Channel = "dev"
)

type Notification struct {
	Channel Channel   `json:"channel"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier delivers a notification. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(ctx, n)
		}
	}
}

// Log writes notifications to slog.
type Log struct{}

func (Log) Notify(_ context.Context, n Notification) {
	slog.Info("Notification", "channel", string(n.Channel), "message", n.Message)
}

// Webhook posts notifications to Discord-compatible webhook URLs, one per
// channel. Channels without a URL are skipped.
type Webhook struct {
	urls   map[Channel]string
	client *http.Client
}

func NewWebhook(urls map[Channel]string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{urls: urls, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) {
	if err := w.Send(ctx, n); err != nil {
		slog.Warn("Webhook notification failed", "channel", string(n.Channel), "error", err)
	}
}

// Send posts n and reports delivery errors.
func (w *Webhook) Send(ctx context.Context, n Notification) error {
	u, ok := w.urls[n.Channel]
	if !ok || u == "" {
		return nil
	}
	b, err := json.Marshal(map[string]string{"content": n.Message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// Feed keeps the most recent notifications in memory so the command channel
// can relay them to pollers. Timestamps in the feed are strictly increasing,
// so the At of the last item a poller saw is an exact cursor for Since.
type Feed struct {
	mu   sync.Mutex
	buf  []Notification
	next int
	full bool
	last time.Time
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 100
	}
	return &Feed{buf: make([]Notification, capacity)}
}

func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	if !n.At.After(f.last) {
		n.At = f.last.Add(time.Nanosecond)
	}
	f.last = n.At
	f.buf[f.next] = n
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()
}

// Since returns notifications newer than t, oldest first.
func (f *Feed) Since(t time.Time) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ordered []Notification
	if f.full {
		ordered = append(ordered, f.buf[f.next:]...)
	}
	ordered = append(ordered, f.buf[:f.next]...)
	out := make([]Notification, 0, len(ordered))
	for _, n := range ordered {
		if n.At.After(t) {
			out = append(out, n)
		}
	}
	return out
}

// ErrNoChannel is returned by ParseChannel for unknown names.
var ErrNoChannel = errors.New("unknown notification channel")

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelStatus, ChannelDev:
		return Channel(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoChannel, s)
}
