package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultFTPTimeout = 30 * time.Second

// FTPClient is the direct Archive implementation. It dials a fresh control
// connection per operation so that a multi-hour run never trips over an FTP
// server's idle-session limit.
type FTPClient struct {
	host     string
	username string
	password string
	timeout  time.Duration
}

type FTPOptions struct {
	Host     string
	Username string
	Password string
	Timeout  time.Duration
}

func NewFTPClient(opts FTPOptions) (*FTPClient, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, fmt.Errorf("ftp host is required")
	}
	if !strings.Contains(host, ":") {
		host += ":21"
	}
	username := strings.TrimSpace(opts.Username)
	if username == "" {
		username = "anonymous"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFTPTimeout
	}
	return &FTPClient{
		host:     host,
		username: username,
		password: opts.Password,
		timeout:  timeout,
	}, nil
}

func (c *FTPClient) ListEntries(ctx context.Context, folder string) ([]string, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Quit() }()

	names, err := conn.NameList(normalizeFolder(folder))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", folder, err)
	}
	entries := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// NLST may return fully qualified paths on some servers.
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		entries = append(entries, name)
	}
	return entries, nil
}

func (c *FTPClient) Fetch(ctx context.Context, folder, name string, dest io.Writer) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Quit() }()

	remotePath := normalizeFolder(folder) + "/" + name
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return fmt.Errorf("retrieving %s: %w", remotePath, err)
	}
	defer func() { _ = resp.Close() }()

	if _, err := io.Copy(dest, resp); err != nil {
		return fmt.Errorf("reading %s: %w", remotePath, err)
	}
	return nil
}

func (c *FTPClient) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(c.host,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(c.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.host, err)
	}
	if err := conn.Login(c.username, c.password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login to %s: %w", c.host, err)
	}
	return conn, nil
}

func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "/"
	}
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	return strings.TrimSuffix(folder, "/")
}
