package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram delivers messages through the Telegram Bot API.
type Telegram struct {
	client *resty.Client
	poll   *resty.Client
	token  string
	log    *zap.Logger
}

// NewTelegram creates a client with optional proxy support. An empty apiBase uses the public API.
func NewTelegram(apiBase, botToken, proxyURL string, timeout time.Duration, log *zap.Logger) *Telegram {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	newClient := func(timeout time.Duration) *resty.Client {
		c := resty.New().SetBaseURL(apiBase).SetTimeout(timeout)
		if proxyURL != "" {
			c.SetProxy(proxyURL)
		}
		return c
	}
	return &Telegram{
		client: newClient(timeout),
		poll:   newClient(pollTimeout + 5*time.Second),
		token:  botToken,
		log:    log.Named("telegram"),
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type sendResponse struct {
	apiResponse
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (t *Telegram) method(name string) string { return fmt.Sprintf("/bot%s/%s", t.token, name) }

// Deliver sends an HTML message to chatID and returns the message id as the delivery receipt.
// There is no retry: a failed send is reported so the caller can fail the signal
// instead of risking a duplicate post.
func (t *Telegram) Deliver(ctx context.Context, text, chatID string) (string, error) {
	var out sendResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		}).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&out).
		Post(t.method("sendMessage"))
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() || !out.OK {
		return "", fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode(), out.Description)
	}
	if out.Result.MessageID == 0 {
		return "", fmt.Errorf("telegram API returned no message id")
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}
