package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DeliveryResult is the provider's verdict on one message.
type DeliveryResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

type sendMessageRequest struct {
	ChatID    any    `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// TelegramClient talks to the Bot API sendMessage method. It makes exactly
// one request per message.
type TelegramClient struct {
	client  *fasthttp.Client
	apiURL  string
	timeout time.Duration
}

func NewTelegramClient(client *fasthttp.Client, apiURL string, timeout time.Duration) *TelegramClient {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TelegramClient{client: client, apiURL: strings.TrimRight(apiURL, "/"), timeout: timeout}
}

// SendMessage posts text to chatID using the given bot token.
func (c *TelegramClient) SendMessage(token, chatID, text string) DeliveryResult {
	if token == "" {
		return DeliveryResult{Description: "bot token not configured"}
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    parseChatID(chatID),
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return DeliveryResult{Description: err.Error()}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, token))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return DeliveryResult{Description: "request failed: " + err.Error()}
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return DeliveryResult{Description: fmt.Sprintf("unexpected response (status %d)", resp.StatusCode())}
	}
	if !out.OK && out.Description == "" {
		out.Description = fmt.Sprintf("telegram error %d", out.ErrorCode)
	}
	return DeliveryResult{OK: out.OK, Description: out.Description}
}

// parseChatID sends numeric ids as numbers and @channel names as strings.
func parseChatID(chatID string) any {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return id
	}
	return chatID
}
