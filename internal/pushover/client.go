// Package pushover delivers fired reminders to a phone through the Pushover
// message API.
package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultAPIURL = "https://api.pushover.net/1/messages.json"

type Message struct {
	Title    string
	Message  string
	URL      string
	URLTitle string
	HTML     bool
	// Priority ranges from -2 (silent) to 1 (bypass quiet hours).
	Priority int
}

type apiResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

type Client struct {
	Token string
	User  string

	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient returns a client allowing at most requestsPerMinute sends.
// Zero or less disables the limit.
func NewClient(token, user string, requestsPerMinute int) *Client {
	c := &Client{
		Token:      token,
		User:       user,
		apiURL:     DefaultAPIURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	if requestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
	}
	return c
}

// SetAPIURL points the client at another endpoint.
func (c *Client) SetAPIURL(u string) {
	c.apiURL = u
}

func (c *Client) Configured() bool {
	return c.Token != "" && c.User != ""
}

func (c *Client) SendMessage(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return fmt.Errorf("pushover credentials not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("token", c.Token)
	params.Set("user", c.User)
	params.Set("title", msg.Title)
	params.Set("message", msg.Message)
	if msg.HTML {
		params.Set("html", "1")
	}
	if msg.Priority != 0 {
		params.Set("priority", strconv.Itoa(msg.Priority))
	}
	if msg.URL != "" {
		params.Set("url", msg.URL)
		params.Set("url_title", msg.URLTitle)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover api error: status %s, body %s", resp.Status, string(body))
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode pushover response: %w", err)
	}
	if out.Status != 1 {
		return fmt.Errorf("pushover rejected message: %s", strings.Join(out.Errors, "; "))
	}
	return nil
}
