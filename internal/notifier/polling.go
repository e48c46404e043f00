package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const pollTimeout = 30 * time.Second

// CommandHandler answers a command received in chatID. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, chatID, text string) string

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type updatesResponse struct {
	apiResponse
	Result []update `json:"result"`
}

// Poll long-polls for commands and replies in the originating chat. Blocks until ctx is cancelled.
func (t *Telegram) Poll(ctx context.Context, handler CommandHandler) {
	var offset int64
	for {
		next, err := t.pollOnce(ctx, offset, handler)
		if ctx.Err() != nil {
			t.log.Info("telegram polling stopped")
			return
		}
		if err != nil {
			t.log.Warn("polling request failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		offset = next
	}
}

// pollOnce fetches one batch of updates, dispatches them and returns the next offset.
func (t *Telegram) pollOnce(ctx context.Context, offset int64, handler CommandHandler) (int64, error) {
	var out updatesResponse
	resp, err := t.poll.R().
		SetContext(ctx).
		SetQueryParam("offset", strconv.FormatInt(offset, 10)).
		SetQueryParam("timeout", strconv.Itoa(int(pollTimeout.Seconds()))).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&out).
		Get(t.method("getUpdates"))
	if err != nil {
		return offset, err
	}
	if resp.IsError() || !out.OK {
		return offset, fmt.Errorf("getUpdates: status %d: %s", resp.StatusCode(), out.Description)
	}

	for _, u := range out.Result {
		offset = u.UpdateID + 1
		if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
			continue
		}
		chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
		text := strings.TrimSpace(u.Message.Text)
		t.log.Info("received command", zap.String("chat", chatID), zap.String("text", text))
		reply := handler(ctx, chatID, text)
		if reply == "" {
			continue
		}
		if _, err := t.Deliver(ctx, reply, chatID); err != nil {
			t.log.Error("send reply", zap.String("chat", chatID), zap.Error(err))
		}
	}
	return offset, nil
}
