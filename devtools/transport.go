// Package devtools speaks the browser automation protocol.
package devtools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"golang.org/x/net/websocket"
)

// transport delivers a single command frame to the remote target and returns
// the raw response frame bearing the same id. Unrelated event frames and
// responses to other in-flight commands are silently discarded. This client
// runs at a low request rate and does not need a multiplexed dispatcher.
type transport interface {
	RoundTrip(ctx context.Context, frame []byte, id int64, timeout time.Duration) ([]byte, error)
	Close() error
}

// wsTransport holds a persistent websocket connection to the debugger.
type wsTransport struct {
	conn *websocket.Conn
}

// dialWS opens the debugger websocket with a short setup timeout.
func dialWS(debuggerURL, origin string, timeout time.Duration) (*wsTransport, error) {
	cfg, err := websocket.NewConfig(debuggerURL, origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	cfg.Dialer = &net.Dialer{Timeout: timeout}

	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial debugger: %v", ErrProtocol, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) RoundTrip(ctx context.Context, frame []byte, id int64, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetDeadline(deadline)

	if err := websocket.Message.Send(t.conn, string(frame)); err != nil {
		return nil, fmt.Errorf("%w: send frame: %v", ErrProtocol, err)
	}

	for {
		var raw string
		if err := websocket.Message.Receive(t.conn, &raw); err != nil {
			if time.Now().After(deadline) {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: receive frame: %v", ErrProtocol, err)
		}

		var probe struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			log.Debugf("devtools: discarding malformed frame: %v", err)
			continue
		}
		if probe.ID != id {
			// Event frame or a response to another in-flight command.
			continue
		}
		return []byte(raw), nil
	}
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// execTransport relays one frame at a time through a one-shot Node.js relay
// piped into the browser's container. Slower than the websocket path, but it
// works when the debugging port is only bound to the container's loopback.
type execTransport struct {
	container   string
	debuggerURL string
}

func (t *execTransport) RoundTrip(ctx context.Context, frame []byte, id int64, timeout time.Duration) ([]byte, error) {
	script := fmt.Sprintf(constant.RelayScript, t.debuggerURL, string(frame), id, timeout.Milliseconds())

	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", t.container, "node", "-")
	cmd.Stdin = bytes.NewReader([]byte(script))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: container relay: %v", ErrProtocol, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var probe struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(line, &probe); err != nil || probe.ID != id {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	return nil, ErrTimeout
}

func (t *execTransport) Close() error {
	return nil
}
