// Package groupapi is the HTTP client for the community platform's group
// endpoints. Only the slice of the API the automation engine needs lives
// here; moderation and backup flows talk to the platform elsewhere.
package groupapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "groupmgr/pkg/logx"
)

type Config struct {
	// BaseURL of the platform API, e.g. "https://api.example.com/1".
	BaseURL string

	// AuthCookie is the session cookie value used by the desktop tooling.
	AuthCookie string

	UserAgent string

	// Timeout bounds each request. Defaults to 10s.
	Timeout time.Duration

	// RatePerMinute throttles outbound calls; platform group endpoints are
	// strict about bursts. Defaults to 30.
	RatePerMinute int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("groupapi: base url is empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("groupapi: invalid base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rpm := cfg.RatePerMinute
	if rpm <= 0 {
		rpm = 30
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		log:     log,
	}, nil
}

// StatusError is a non-2xx platform response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("groupapi: status %d: %s", e.Code, e.Body)
}

type groupPostReq struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	ImageID    string `json:"imageId,omitempty"`
	SendNotify bool   `json:"sendNotification"`
	Visibility string `json:"visibility"`
}

// CreateGroupPost publishes an announcement post in the given group.
// Any transport error or non-2xx status is returned to the caller; the
// automation engine treats that as a fault and retries on a later tick.
func (c *Client) CreateGroupPost(ctx context.Context, groupID, title, body, imageID string) error {
	if strings.TrimSpace(groupID) == "" {
		return errors.New("groupapi: group id is empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(groupPostReq{
		Title:      title,
		Text:       body,
		ImageID:    imageID,
		SendNotify: true,
		Visibility: "group",
	})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/groups/" + url.PathEscape(groupID) + "/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.AuthCookie != "" {
		req.AddCookie(&http.Cookie{Name: "auth", Value: c.cfg.AuthCookie})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	c.log.Debug("group post created",
		logx.String("group", groupID),
		logx.Duration("took", time.Since(start)))
	return nil
}
