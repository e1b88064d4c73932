package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ProxyClient is the Archive implementation for hosts that cannot reach the
// FTP site directly. A relay endpoint lists a directory when called with
// ?directory=<ftp-url>/ and streams a file when called with ?url=<ftp-url>.
// Directory listings come back as a comma-separated list of names.
type ProxyClient struct {
	proxyBase  string
	ftpBase    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     Logger
}

type ProxyOptions struct {
	// ProxyBase is the relay endpoint, e.g.
	// "https://proxy.example.net/ProxyFTP.aspx".
	ProxyBase string
	// FTPHost is the upstream FTP host the relay fetches from.
	FTPHost    string
	HTTPClient *http.Client
	Logger     Logger
}

func NewProxyClient(opts ProxyOptions) (*ProxyClient, error) {
	proxyBase := strings.TrimSpace(opts.ProxyBase)
	if proxyBase == "" {
		return nil, fmt.Errorf("proxy base URL is required")
	}
	ftpHost := strings.TrimSpace(opts.FTPHost)
	if ftpHost == "" {
		return nil, fmt.Errorf("ftp host is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ProxyClient{
		proxyBase:  proxyBase,
		ftpBase:    "ftp://" + ftpHost,
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
		logger:     opts.Logger,
	}, nil
}

func (c *ProxyClient) ListEntries(ctx context.Context, folder string) ([]string, error) {
	// The relay requires the trailing slash on directory URLs.
	target := c.proxyBase + "?directory=" + url.QueryEscape(c.ftpBase+normalizeFolder(folder)+"/")
	body, err := c.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("listing %s via proxy: %w", folder, err)
	}
	parts := strings.Split(string(body), ",")
	entries := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		entries = append(entries, name)
	}
	return entries, nil
}

func (c *ProxyClient) Fetch(ctx context.Context, folder, name string, dest io.Writer) error {
	source := c.ftpBase + normalizeFolder(folder) + "/" + name
	target := c.proxyBase + "?url=" + url.QueryEscape(source)
	return c.getStream(ctx, target, dest)
}

func (c *ProxyClient) get(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	err := c.getStreamFn(ctx, target, func(r io.Reader) error {
		var readErr error
		body, readErr = io.ReadAll(r)
		return readErr
	})
	return body, err
}

func (c *ProxyClient) getStream(ctx context.Context, target string, dest io.Writer) error {
	return c.getStreamFn(ctx, target, func(r io.Reader) error {
		_, err := io.Copy(dest, r)
		return err
	})
}

func (c *ProxyClient) getStreamFn(ctx context.Context, target string, consume func(io.Reader) error) error {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			consumeErr := consume(resp.Body)
			_ = resp.Body.Close()
			return consumeErr
		}
		retryAfter := resp.Header.Get("Retry-After")
		_ = resp.Body.Close()
		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, retryAfter)); waitErr != nil {
				return waitErr
			}
			continue
		}
		return &HTTPError{StatusCode: resp.StatusCode, URL: target}
	}
}

// HTTPError is a non-retryable HTTP response from the relay.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d fetching %s", e.StatusCode, e.URL)
}

func (c *ProxyClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
