package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Derivatives-Signature"
	HeaderTimestamp = "X-Derivatives-Timestamp"
)

var (
	ErrAuthRejected = errors.New("notification rejected: unauthorized")
	ErrServer       = errors.New("notification failed: server error")
)

type Config struct {
	URL           string
	APIKey        string
	SigningSecret string
	Timeout       time.Duration
}

// Notification describes one published version.
type Notification struct {
	Version     string
	Basename    string
	AspectGroup string
	Metadata    map[string]string
}

// Result reports how the endpoint answered. Anomaly is set for statuses the
// API contract does not define; those are not errors.
type Result struct {
	StatusCode int
	Anomaly    bool
}

type Client struct {
	httpClient    *http.Client
	endpoint      string
	apiKey        string
	signingSecret string
	now           func() time.Time
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		endpoint:      strings.TrimSpace(cfg.URL),
		apiKey:        cfg.APIKey,
		signingSecret: cfg.SigningSecret,
		now:           time.Now,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Notify posts the notification once. 401 and 5xx are returned as errors
// wrapping ErrAuthRejected and ErrServer; 201 is success.
func (c *Client) Notify(ctx context.Context, n Notification) (Result, error) {
	if !c.Enabled() {
		return Result{}, nil
	}

	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return Result{}, fmt.Errorf("marshal notification metadata: %w", err)
	}

	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("version", n.Version)
	form.Set("basename", n.Basename)
	form.Set("aspect_group", n.AspectGroup)
	form.Set("verbose_metadata", string(metadata))
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.signingSecret != "" {
		timestamp := strconv.FormatInt(c.now().UTC().Unix(), 10)
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, c.sign(timestamp, []byte(body)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return classifyStatus(resp.StatusCode)
}

func classifyStatus(status int) (Result, error) {
	res := Result{StatusCode: status}
	switch {
	case status == http.StatusCreated:
		return res, nil
	case status == http.StatusUnauthorized:
		return res, fmt.Errorf("%w (status=%d)", ErrAuthRejected, status)
	case status >= 500 && status <= 599:
		return res, fmt.Errorf("%w (status=%d)", ErrServer, status)
	default:
		res.Anomaly = true
		return res, nil
	}
}

func (c *Client) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.signingSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
