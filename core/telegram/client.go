package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	tele "gopkg.in/telebot.v4"
)

const defaultAPIBase = "https://api.telegram.org"

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Client performs raw Bot API calls for arbitrary tokens. The regular
// telebot runtime binds a bot instance to a single token; this client
// serves the multiplexed case where every call may carry a different one.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	return &Client{
		http:    BuildHTTPClient(),
		baseURL: baseURL,
	}
}

// APIError is a non-OK response from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api: %d %s", e.Code, e.Description)
}

// BotIdentity is the subset of getMe the constructor cares about.
type BotIdentity struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// SendOptions carries the optional parts of sendMessage.
type SendOptions struct {
	ParseMode   string
	ReplyMarkup *tele.ReplyMarkup
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// GetMe verifies a token and returns the bot it belongs to.
func (c *Client) GetMe(ctx context.Context, token string) (BotIdentity, error) {
	var id BotIdentity
	raw, err := c.call(ctx, token, "getMe", nil)
	if err != nil {
		return id, err
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return id, fmt.Errorf("decode getMe result: %w", err)
	}
	return id, nil
}

// SendMessage delivers text to a chat on behalf of the given token.
func (c *Client) SendMessage(ctx context.Context, token string, chatID int64, text string, opts *SendOptions) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if opts != nil {
		if opts.ParseMode != "" {
			params["parse_mode"] = opts.ParseMode
		}
		if opts.ReplyMarkup != nil {
			params["reply_markup"] = opts.ReplyMarkup
		}
	}
	_, err := c.call(ctx, token, "sendMessage", params)
	return err
}

// SetWebhook points the bot's update delivery at url.
func (c *Client) SetWebhook(ctx context.Context, token, url string) error {
	_, err := c.call(ctx, token, "setWebhook", map[string]any{"url": url})
	return err
}

// DeleteWebhook detaches the bot from its webhook endpoint.
func (c *Client) DeleteWebhook(ctx context.Context, token string, dropPending bool) error {
	_, err := c.call(ctx, token, "deleteWebhook", map[string]any{"drop_pending_updates": dropPending})
	return err
}

// AnswerCallbackQuery stops the client-side loading spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, token, callbackID string) error {
	_, err := c.call(ctx, token, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID})
	return err
}

func (c *Client) call(ctx context.Context, token, method string, params map[string]any) (json.RawMessage, error) {
	var body io.Reader
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%s: encode params: %w", method, err)
		}
		body = bytes.NewReader(buf)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, redactErr(fmt.Errorf("%s: build request: %w", method, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redactErr(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !parsed.OK {
		code := parsed.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, fmt.Errorf("%s: %w", method, &APIError{Code: code, Description: parsed.Description})
	}
	return parsed.Result, nil
}

// redactErr strips bot tokens that leak into transport errors via URLs.
func redactErr(err error) error {
	if err == nil {
		return nil
	}
	cleaned := tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
	if cleaned == err.Error() {
		return err
	}
	return fmt.Errorf("%s", cleaned)
}
