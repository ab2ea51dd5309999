package practicum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

const maxBodyBytes = 4 << 20

// TransportError covers everything that goes wrong before a payload can be
// validated: bad cursor, network failure, non-200 status, undecodable body.
type TransportError struct {
	Op         string // "request" | "status" | "decode"
	StatusCode int
	Body       string // bounded excerpt, only for Op == "status"
	Err        error
}

func (e *TransportError) Error() string {
	if e.Op == "status" {
		if e.Body != "" {
			return fmt.Sprintf("homework api status: http %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("homework api status: http %d", e.StatusCode)
	}
	return fmt.Sprintf("homework api %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client fetches homework statuses for one account. It performs no retries.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(endpoint, token string, opts ...ClientOption) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(cursor, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch returns the decoded, unvalidated payload for statuses changed since
// cursor. Numbers are decoded as json.Number.
func (c *Client) Fetch(ctx context.Context, cursor int64) (any, error) {
	if cursor < 0 {
		return nil, &TransportError{Op: "request", Err: fmt.Errorf("negative cursor %d", cursor)}
	}
	fullURL, err := c.buildURL(cursor)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: "request", StatusCode: res.StatusCode, Err: err}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Op:         "status",
			StatusCode: res.StatusCode,
			Body:       excerpt(body, 300),
			Err:        errors.New(http.StatusText(res.StatusCode)),
		}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, &TransportError{Op: "decode", StatusCode: res.StatusCode, Err: err}
	}
	if dec.More() {
		return nil, &TransportError{Op: "decode", StatusCode: res.StatusCode, Err: errors.New("trailing data after JSON value")}
	}
	return out, nil
}

func excerpt(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
