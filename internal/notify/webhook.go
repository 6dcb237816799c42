// Package notify posts newly unlocked awards to an optional webhook.
// Delivery is strictly best-effort; failures are the caller's to log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"studioregister/internal/model"
)

// Client posts award events to a configured URL. A nil Client, or one built
// from an empty URL, silently does nothing.
type Client struct {
	url  string
	http *http.Client
}

// New builds a webhook client; url == "" disables delivery.
func New(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

type awardPayload struct {
	Event       string    `json:"event"`
	AwardID     string    `json:"awardId"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName,omitempty"`
	ClassID     string    `json:"classId"`
	PeriodKey   string    `json:"periodKey"`
	DecidedBy   string    `json:"decidedBy"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

// AwardUnlocked delivers one unlock notification.
func (c *Client) AwardUnlocked(ctx context.Context, a model.AwardUnlock, studentName string) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(awardPayload{
		Event:       "award_unlocked",
		AwardID:     string(a.AwardID),
		StudentID:   a.StudentID,
		StudentName: studentName,
		ClassID:     a.ClassID,
		PeriodKey:   a.Period.Key,
		DecidedBy:   string(a.DecidedBy),
		UnlockedAt:  a.UnlockedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
