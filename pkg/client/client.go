package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is where minerd serve listens by default.
const DefaultBaseURL = "http://127.0.0.1:8080/api"

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Client provides HTTP client functionality to communicate with the minerd daemon
type Client struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	token    string
	username string
	password string
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	CACert   string       // PEM file of the CA that signed the daemon certificate
	Insecure bool         // Skip TLS verification
	// Token is sent as a bearer token. Username and Password are sent as
	// basic credentials when Token is empty.
	Token    string
	Username string
	Password string
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		// start and stop may take the daemon's stop timeout plus the kill wait
		Timeout: 30 * time.Second,
	}
}

// New creates a new minerd API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.Insecure || config.CACert != "" {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		logger:   config.Logger,
		token:    config.Token,
		username: config.Username,
		password: config.Password,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken replaces the bearer token, e.g. after Login.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
}

// IsReachable checks if the daemon is running and reachable. A daemon that
// rejects the credentials still counts as reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	isReachable := resp.StatusCode == http.StatusOK ||
		resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Start asks the daemon to launch its task. A nil request starts the
// configured task unchanged.
func (c *Client) Start(ctx context.Context, req *StartRequest) error {
	var body []byte
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = data
	}
	return c.do(ctx, http.MethodPost, "/start", body, nil)
}

// Login exchanges username and password for a bearer token. The client
// keeps using its configured credentials; call SetToken to switch.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Token{}, err
	}
	var tok Token
	err = c.do(ctx, http.MethodPost, "/login", body, &tok)
	return tok, err
}

// Stop asks the daemon to stop its task. Stopping an idle daemon succeeds.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/stop", nil, nil)
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Logs returns the newest tail buffered entries, all when tail <= 0.
func (c *Client) Logs(ctx context.Context, tail int) ([]LogEntry, error) {
	path := "/logs"
	if tail > 0 {
		path += "?" + url.Values{"tail": {strconv.Itoa(tail)}}.Encode()
	}
	var out []LogEntry
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// LogsSince returns entries appended after sequence number seq and the
// sequence number to pass on the next call. Start following with seq 0.
func (c *Client) LogsSince(ctx context.Context, seq uint64) ([]LogEntry, uint64, error) {
	path := "/logs?" + url.Values{"since": {strconv.FormatUint(seq, 10)}}.Encode()
	var out []LogEntry
	hdr, err := c.doWithHeader(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, seq, err
	}
	next, err := strconv.ParseUint(hdr.Get(LogSeqHeader), 10, 64)
	if err != nil {
		return nil, seq, fmt.Errorf("missing %s header", LogSeqHeader)
	}
	return out, next, nil
}

func (c *Client) History(ctx context.Context, limit int) ([]Event, error) {
	path := "/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out []Event
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- explicit opt-in
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(config.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// LogSeqHeader is the response header carrying the daemon's log sequence number.
const LogSeqHeader = "X-Log-Seq"

// do performs a request against path and decodes a 200 response into out
// when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	_, err := c.doWithHeader(ctx, method, path, body, out)
	return err
}

func (c *Client) doWithHeader(ctx context.Context, method, path string, body []byte, out any) (http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", u)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return resp.Header, c.errorFromResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
