// Package notify sends fire-and-forget operator notifications. A failed
// or unconfigured notifier never affects pipeline state.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

type Event string

const (
	EventItemPublished     Event = "item_published"
	EventItemComplete      Event = "item_complete"
	EventAllCaughtUp       Event = "all_caught_up"
	EventCredentialsNeeded Event = "credentials_needed"
	EventDownloadFailed    Event = "download_failed"
)

type Notifier interface {
	Notify(event Event, message string)
}

// Nop is the notifier used when nothing is configured.
type Nop struct{}

func (Nop) Notify(Event, string) {}

// Telegram posts messages through a bot. Credentials come from
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID; with either missing the
// notifier is disabled and every call is a no-op.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logf    func(format string, args ...any)
}

func NewTelegramFromEnv(logf func(format string, args ...any)) *Telegram {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Telegram{
		token:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		chatID:  os.Getenv("TELEGRAM_CHAT_ID"),
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 30 * time.Second},
		logf:    logf,
	}
}

func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) Notify(event Event, message string) {
	if !t.Enabled() {
		return
	}
	payload, err := BuildPayload(t.chatID, event, message)
	if err != nil {
		t.logf("notify: build payload: %v", err)
		return
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.logf("notify: send %s: %v", event, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.logf("notify: send %s: unexpected status %s", event, resp.Status)
	}
}

// BuildPayload renders the sendMessage body for an event.
func BuildPayload(chatID string, event Event, message string) ([]byte, error) {
	headline := map[Event]string{
		EventItemPublished:     "Segment published",
		EventItemComplete:      "Item complete",
		EventAllCaughtUp:       "All items caught up",
		EventCredentialsNeeded: "Origin credentials need a refresh",
		EventDownloadFailed:    "Download failed",
	}[event]
	if headline == "" {
		headline = string(event)
	}
	text := headline
	if message != "" {
		text += "\n" + message
	}
	return json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
}
