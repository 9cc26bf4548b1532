package spectate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/ascii-chess/pkg/chessdto"
)

// ErrNoGame is returned while the watched process has not started a game.
var ErrNoGame = errors.New("spectate: no game published")

// Client polls a spectator Server.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

// NewClient accepts "host:port" or a full http URL.
func NewClient(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL:        base,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State(ctx context.Context) (*chessdto.Snapshot, error) {
	body, err := c.get(ctx, "/state")
	if err != nil {
		return nil, err
	}
	var snap chessdto.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &snap, nil
}

func (c *Client) BoardPNG(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/board.png")
}

func (c *Client) PGN(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/pgn")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			switch {
			case status == fasthttp.StatusNotFound:
				return nil, ErrNoGame
			case status < 200 || status >= 300:
				lastErr = fmt.Errorf("spectate error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
				if !shouldRetryStatus(status) {
					return nil, lastErr
				}
			default:
				return append([]byte(nil), resp.Body()...), nil
			}
		}
		if attempt == attempts {
			break
		}
		if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Watch polls /state every interval and calls onChange when the snapshot
// moves on. It returns when ctx is done.
func (c *Client) Watch(ctx context.Context, interval time.Duration, onChange func(chessdto.Snapshot)) error {
	if interval <= 0 {
		interval = time.Second
	}
	var last chessdto.Snapshot
	seen := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, err := c.State(ctx)
		switch {
		case err == nil:
			if !seen || changed(last, *snap) {
				onChange(*snap)
				last, seen = *snap, true
			}
		case errors.Is(err, ErrNoGame):
		default:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func changed(a, b chessdto.Snapshot) bool {
	return a.SessionUUID != b.SessionUUID || a.FEN != b.FEN || a.Phase != b.Phase || a.Result != b.Result || !a.UpdatedAt.Equal(b.UpdatedAt)
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
