package offhours

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CalendarOracle asks a Google Calendar holiday calendar whether it has any
// event in a time window.
type CalendarOracle struct {
	baseURL    string
	apiKey     string
	calendarID string
	http       *http.Client
}

func NewCalendarOracle(baseURL, apiKey, calendarID string, httpClient *http.Client) *CalendarOracle {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CalendarOracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		calendarID: calendarID,
		http:       httpClient,
	}
}

type eventsList struct {
	Items []json.RawMessage `json:"items"`
}

func (o *CalendarOracle) HasHoliday(ctx context.Context, from, to time.Time) (bool, error) {
	q := url.Values{}
	q.Set("timeMin", from.Format(time.RFC3339))
	q.Set("timeMax", to.Format(time.RFC3339))
	q.Set("maxResults", "1")
	q.Set("singleEvents", "true")
	if o.apiKey != "" {
		q.Set("key", o.apiKey)
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", o.baseURL, url.PathEscape(o.calendarID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build calendar request: %w", err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("list calendar events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("list calendar events: status %d: %s", resp.StatusCode, b)
	}

	var list eventsList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return false, fmt.Errorf("decode calendar events: %w", err)
	}
	return len(list.Items) > 0, nil
}
