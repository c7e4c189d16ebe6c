package telegram

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	Token      string
	httpClient *resty.Client
}

func NewClient(token string) *Client {
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(10 * time.Second)

	return &Client{Token: token, httpClient: client}
}

// WithBaseURL points the client at another Bot API host.
func (c *Client) WithBaseURL(u string) *Client {
	c.httpClient.SetBaseURL(u)
	return c
}

type sendMessageReq struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("/bot%s/%s", c.Token, name)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendMessageReq{ChatID: chatID, Text: text}).
		Post(c.method("sendMessage"))
	return check(resp, err, "message")
}

// SendDocument uploads fileData as a named document to the chat.
func (c *Client) SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}).
		SetFileReader("document", fileName, bytes.NewReader(fileData)).
		Post(c.method("sendDocument"))
	return check(resp, err, "document")
}

func check(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("failed to send telegram %s: %w", what, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("telegram api returned status: %s, body: %s", resp.Status(), resp.String())
	}
	return nil
}
