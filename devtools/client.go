// Package devtools speaks the browser automation protocol.
package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
)

const (
	// connectTimeout bounds target discovery and the websocket dial.
	connectTimeout = 5 * time.Second

	// responseTimeout bounds any single response wait.
	responseTimeout = 30 * time.Second

	// settleDelay is how long a freshly navigated context is given before
	// scripts are evaluated against it.
	settleDelay = 2 * time.Second
)

// Client drives one remote execution context. Safe for concurrent use; frames
// are serialized on the underlying transport.
type Client struct {
	mu     sync.Mutex
	tr     transport
	origin string
	nextID atomic.Int64
}

// Options configure Connect.
type Options struct {
	// Endpoint is the automation endpoint base URL (e.g. http://localhost:9222).
	Endpoint string

	// Origin is the provider origin the context must be pointed at.
	Origin string

	// Container, when non-empty, relays every frame through "docker exec"
	// into the named container instead of dialing the endpoint directly.
	Container string
}

// Connect discovers the remote endpoint's targets, prefers a context already
// pointed at the provider origin, and navigates any other available context
// there, waiting a fixed settle delay.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Origin == "" {
		opts.Origin = constant.BaseURL
	}

	var disc discoverer
	if opts.Container != "" {
		disc = execDiscoverer{container: opts.Container}
	} else {
		disc = httpDiscoverer{endpoint: opts.Endpoint}
	}

	dctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	targets, err := disc.Discover(dctx)
	if err != nil {
		return nil, err
	}

	target, ok := pickTarget(targets, opts.Origin)
	if !ok {
		return nil, ErrNoTarget
	}

	var tr transport
	if opts.Container != "" {
		tr = &execTransport{container: opts.Container, debuggerURL: target.WebSocketDebuggerURL}
	} else {
		tr, err = dialWS(target.WebSocketDebuggerURL, opts.Origin, connectTimeout)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{tr: tr, origin: opts.Origin}

	if !strings.HasPrefix(target.URL, opts.Origin) {
		log.Infof("devtools: navigating context from %q to provider origin", target.URL)
		if err := c.Navigate(ctx, opts.Origin); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// Close tears down the underlying transport.
func (c *Client) Close() {
	if err := c.tr.Close(); err != nil {
		log.Warnf("devtools: close transport: %v", err)
	}
}

// call sends one command frame and decodes the correlated response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	frame, err := json.Marshal(map[string]any{
		"id":     id,
		"method": method,
		"params": params,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrProtocol, err)
	}

	c.mu.Lock()
	raw, err := c.tr.RoundTrip(ctx, frame, id, responseTimeout)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response frame: %v", ErrProtocol, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrProtocol, method, resp.Error.Message)
	}
	return resp.Result, nil
}

// Evaluate runs a script expression in the remote context and returns its
// result as raw text. Callers are responsible for JSON-decoding. A script
// that raises surfaces as ErrScriptException, distinct from transport errors.
func (c *Client) Evaluate(ctx context.Context, expression string, awaitPromise bool) (string, error) {
	result, err := c.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"awaitPromise":  awaitPromise,
		"returnByValue": true,
	})
	if err != nil {
		return "", err
	}

	var eval struct {
		Result struct {
			Type    string          `json:"type"`
			Subtype string          `json:"subtype"`
			Value   json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &eval); err != nil {
		return "", fmt.Errorf("%w: decode evaluate result: %v", ErrProtocol, err)
	}
	if eval.ExceptionDetails != nil {
		return "", fmt.Errorf("%w: %s", ErrScriptException, eval.ExceptionDetails.Text)
	}
	if eval.Result.Subtype == "null" || len(eval.Result.Value) == 0 || string(eval.Result.Value) == "null" {
		return "", ErrEmptyResult
	}

	// String results come back JSON-quoted; everything else is returned as
	// its JSON encoding.
	if eval.Result.Type == "string" {
		var s string
		if err := json.Unmarshal(eval.Result.Value, &s); err != nil {
			return "", fmt.Errorf("%w: decode string result: %v", ErrProtocol, err)
		}
		return s, nil
	}
	return string(eval.Result.Value), nil
}

// Navigate points the remote context at a URL and waits the settle delay.
func (c *Client) Navigate(ctx context.Context, url string) error {
	if _, err := c.call(ctx, "Page.navigate", map[string]any{"url": url}); err != nil {
		return err
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Fetch performs a same-origin network call from inside the remote context
// and returns the JSON-encoded response body. This is the mechanism by which
// all proxied API calls execute inside the browser rather than through this
// process's network stack.
func (c *Client) Fetch(ctx context.Context, path, method string, headers map[string]string, body string) (string, error) {
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("%w: encode headers: %v", ErrProtocol, err)
	}

	bodyLit := "null"
	if body != "" {
		encoded, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("%w: encode body: %v", ErrProtocol, err)
		}
		bodyLit = string(encoded)
	}

	expr := fmt.Sprintf(constant.FetchScript, path, method, string(headerJSON), bodyLit)
	return c.Evaluate(ctx, expr, true)
}
