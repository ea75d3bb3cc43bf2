// Package flaresolverr keeps the remote solver browser alive between calls
// and proxies page requests through it.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/ocnaibill/crunchyroll-jellyfin/network"
)

const (
	// requestTimeout is the maxTimeout handed to the solver for one challenge.
	requestTimeout = 60 * time.Second

	// destroyTimeout bounds session teardown independently of any caller
	// context, so a cancelled caller cannot orphan the remote browser.
	destroyTimeout = 10 * time.Second
)

// command is the solver's single-endpoint JSON command object.
type command struct {
	Cmd        string            `json:"cmd"`
	URL        string            `json:"url,omitempty"`
	Session    string            `json:"session,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	PostData   string            `json:"postData,omitempty"`
	MaxTimeout int               `json:"maxTimeout,omitempty"`
	Wait       int               `json:"wait,omitempty"`
}

// Cookie is one browser cookie captured by the solver.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Solution is the solver's rendered result for one request.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies,omitempty"`
	UserAgent string   `json:"userAgent,omitempty"`
}

type envelope struct {
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Session  string    `json:"session,omitempty"`
	Solution *Solution `json:"solution,omitempty"`
}

// Client manages one persistent solver session. The remote browser process
// stays alive between calls as long as the session exists.
type Client struct {
	endpoint string
	http     *http.Client

	mu      sync.Mutex
	session string
}

// New builds a solver client for the given endpoint URL.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     network.Client,
	}
}

// Ensure lazily creates the solver session. Double-checked locking guards
// against duplicate session creation under concurrent first use.
func (c *Client) Ensure(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != "" {
		return c.session, nil
	}

	resp, err := c.post(ctx, command{Cmd: "sessions.create"})
	if err != nil {
		return "", fmt.Errorf("create solver session: %w", err)
	}
	if resp.Session == "" {
		return "", fmt.Errorf("create solver session: empty session id (%s)", resp.Message)
	}

	log.Infof("flaresolverr: created session %s", resp.Session)
	c.session = resp.Session
	return c.session, nil
}

// Get fetches a URL through the solver session and returns the rendered solution.
func (c *Client) Get(ctx context.Context, url string) (*Solution, error) {
	session, err := c.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, command{
		Cmd:        "request.get",
		URL:        url,
		Session:    session,
		MaxTimeout: int(requestTimeout.Milliseconds()),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != "ok" || resp.Solution == nil {
		return nil, fmt.Errorf("solver request failed: %s", resp.Message)
	}
	return resp.Solution, nil
}

// Destroy tears down the solver session. It runs on its own short deadline,
// independent of any already-cancelled caller, and never returns an error:
// teardown failures are logged, not propagated.
func (c *Client) Destroy() {
	c.mu.Lock()
	session := c.session
	c.session = ""
	c.mu.Unlock()

	if session == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()

	if _, err := c.post(ctx, command{Cmd: "sessions.destroy", Session: session}); err != nil {
		log.Warnf("flaresolverr: destroy session %s: %v", session, err)
		return
	}
	log.Infof("flaresolverr: destroyed session %s", session)
}

// post sends one command object to the solver's single endpoint.
func (c *Client) post(ctx context.Context, cmd command) (*envelope, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode solver command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solver unreachable: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode solver response: %w", err)
	}
	return &env, nil
}
