package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const PushoverAPIURL = "https://api.pushover.net/1/messages.json"

// PushoverSink posts events to the Pushover messages API.
type PushoverSink struct {
	Token  string
	User   string
	APIURL string
	HTTP   *http.Client
}

func NewPushoverSink(token, user string) *PushoverSink {
	return &PushoverSink{
		Token:  token,
		User:   user,
		APIURL: PushoverAPIURL,
		HTTP:   http.DefaultClient,
	}
}

func (c *PushoverSink) Name() string { return "pushover" }

func (c *PushoverSink) Send(ctx context.Context, ev Event) error {
	return c.SendMessage(ctx, ev.Title, ev.Message)
}

func (c *PushoverSink) SendMessage(ctx context.Context, title, message string) error {
	params := url.Values{}
	params.Set("token", c.Token)
	params.Set("user", c.User)
	params.Set("title", title)
	params.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pushover api error: status %s, body %s", resp.Status, string(body))
	}
	return nil
}
