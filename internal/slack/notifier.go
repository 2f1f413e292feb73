package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ResponseLog keeps a copy of every Slack answer.
type ResponseLog interface {
	Record(ctx context.Context, phase, message string)
}

// Notifier posts Block Kit messages to a single channel via chat.postMessage.
type Notifier struct {
	baseURL string
	token   string
	channel string
	http    *http.Client
	log     ResponseLog
}

func NewNotifier(baseURL, token, channel string, httpClient *http.Client, log ResponseLog) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		channel: channel,
		http:    httpClient,
		log:     log,
	}
}

type postMessageRequest struct {
	Channel string  `json:"channel"`
	Blocks  []Block `json:"blocks"`
}

// PostMessage sends blocks and returns the raw response body. The body is
// logged, not interpreted: Slack answers 200 even for most failures.
func (n *Notifier) PostMessage(ctx context.Context, blocks []Block) (string, error) {
	payload, err := json.Marshal(postMessageRequest{Channel: n.channel, Blocks: blocks})
	if err != nil {
		return "", fmt.Errorf("encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read slack response: %w", err)
	}
	body := string(b)

	slog.DebugContext(ctx, "slack response", "status", resp.StatusCode, "body", body)
	if n.log != nil {
		n.log.Record(ctx, "response", body)
	}
	return body, nil
}
