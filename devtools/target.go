// Package devtools speaks the browser automation protocol.
package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/network"
)

// Target is one addressable execution context exposed by the remote
// automation endpoint's discovery call.
type Target struct {
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// discoverer lists the remote endpoint's targets. Two implementations exist:
// a plain HTTP call, and an out-of-band call relayed through the browser's
// container when no direct network path exists.
type discoverer interface {
	Discover(ctx context.Context) ([]Target, error)
}

// httpDiscoverer queries <endpoint>/json over this process's network stack.
type httpDiscoverer struct {
	endpoint string
}

func (d httpDiscoverer) Discover(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(d.endpoint, "/")+"/json", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	resp, err := network.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery: %v", ErrProtocol, err)
	}
	defer resp.Body.Close()

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("%w: decode discovery response: %v", ErrProtocol, err)
	}
	return targets, nil
}

// execDiscoverer queries the loopback debugging port from inside the
// browser's container, for deployments where the endpoint is not routable
// from this process.
type execDiscoverer struct {
	container string
}

func (d execDiscoverer) Discover(ctx context.Context) ([]Target, error) {
	cmd := exec.CommandContext(ctx, "docker", "exec", d.container,
		"curl", "-s", "http://127.0.0.1:9222/json")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: container discovery: %v", ErrProtocol, err)
	}

	var targets []Target
	if err := json.Unmarshal(out, &targets); err != nil {
		return nil, fmt.Errorf("%w: decode container discovery response: %v", ErrProtocol, err)
	}
	return targets, nil
}

// pickTarget prefers a page already pointed at the wanted origin, then any
// page target at all.
func pickTarget(targets []Target, origin string) (Target, bool) {
	isPage := func(t Target) bool {
		return t.WebSocketDebuggerURL != "" && (t.Type == "" || t.Type == "page")
	}

	for _, t := range targets {
		if isPage(t) && strings.HasPrefix(t.URL, origin) {
			return t, true
		}
	}
	for _, t := range targets {
		if isPage(t) {
			return t, true
		}
	}
	return Target{}, false
}
