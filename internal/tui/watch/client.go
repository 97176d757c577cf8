package watch

import (
	"encoding/json"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// --- Message types ---

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type statsMsg struct {
	Ready      int `json:"ready"`
	InFlight   int `json:"in_flight"`
	DeadLetter int `json:"dead_letter"`
}

type deadLetterEntry struct {
	ID             string    `json:"id"`
	DeliveryID     string    `json:"delivery_id"`
	EventType      string    `json:"event_type"`
	FailureReason  string    `json:"failure_reason"`
	Attempts       int       `json:"attempts"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

type deadLettersMsg []deadLetterEntry

type pollMsg time.Time

type errMsg error

// --- Commands ---

func getJSON(apiURL, apiKey, path string, out any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest("GET", apiURL+path, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchHealth(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		var h healthMsg
		if err := getJSON(apiURL, apiKey, "/healthz", &h); err != nil {
			return errMsg(err)
		}
		return h
	}
}

func fetchStats(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		var s statsMsg
		if err := getJSON(apiURL, apiKey, "/api/v1/queue/stats", &s); err != nil {
			return errMsg(err)
		}
		return s
	}
}

func fetchDeadLetters(apiURL, apiKey string) tea.Cmd {
	return func() tea.Msg {
		var resp struct {
			DeadLetters []deadLetterEntry `json:"dead_letters"`
		}
		if err := getJSON(apiURL, apiKey, "/api/v1/deadletters?limit=20", &resp); err != nil {
			return errMsg(err)
		}
		return deadLettersMsg(resp.DeadLetters)
	}
}
