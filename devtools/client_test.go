package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/net/websocket"
)

// fakeTransport answers every frame with a canned response keyed on nothing
// but the frame id, recording what was sent.
type fakeTransport struct {
	sent   [][]byte
	result string
}

func (f *fakeTransport) RoundTrip(ctx context.Context, frame []byte, id int64, timeout time.Duration) ([]byte, error) {
	f.sent = append(f.sent, frame)
	resp := strings.ReplaceAll(f.result, "{{id}}", jsonInt(id))
	return []byte(resp), nil
}

func (f *fakeTransport) Close() error { return nil }

func jsonInt(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

func TestEvaluate(t *testing.T) {
	Convey("Script evaluation", t, func() {
		Convey("A string result comes back unquoted", func() {
			tr := &fakeTransport{result: `{"id":{{id}},"result":{"result":{"type":"string","value":"hello"}}}`}
			c := &Client{tr: tr}

			out, err := c.Evaluate(context.Background(), "1+1", false)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "hello")
		})

		Convey("A boolean result comes back as its JSON encoding", func() {
			tr := &fakeTransport{result: `{"id":{{id}},"result":{"result":{"type":"boolean","value":true}}}`}
			c := &Client{tr: tr}

			out, err := c.Evaluate(context.Background(), "!!document", false)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "true")
		})

		Convey("A raised exception is distinct from a transport failure", func() {
			tr := &fakeTransport{result: `{"id":{{id}},"result":{"exceptionDetails":{"text":"ReferenceError"}}}`}
			c := &Client{tr: tr}

			_, err := c.Evaluate(context.Background(), "nope()", false)
			So(errors.Is(err, ErrScriptException), ShouldBeTrue)
			So(errors.Is(err, ErrProtocol), ShouldBeFalse)
		})

		Convey("A null result is the empty sentinel", func() {
			tr := &fakeTransport{result: `{"id":{{id}},"result":{"result":{"type":"object","subtype":"null","value":null}}}`}
			c := &Client{tr: tr}

			_, err := c.Evaluate(context.Background(), "null", false)
			So(err, ShouldEqual, ErrEmptyResult)
		})

		Convey("A protocol-level error frame surfaces as ErrProtocol", func() {
			tr := &fakeTransport{result: `{"id":{{id}},"error":{"message":"target crashed"}}`}
			c := &Client{tr: tr}

			_, err := c.Evaluate(context.Background(), "1", false)
			So(errors.Is(err, ErrProtocol), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "target crashed")
		})
	})
}

func TestFetch(t *testing.T) {
	Convey("Given a connected client", t, func() {
		tr := &fakeTransport{result: `{"id":{{id}},"result":{"result":{"type":"string","value":"{\"total\":0}"}}}`}
		c := &Client{tr: tr}

		Convey("When a same-origin call is proxied", func() {
			body, err := c.Fetch(context.Background(), "/content/v2/cms/series/x", "GET", map[string]string{
				"Authorization": "Bearer tok",
			}, "")

			Convey("Then the response body is returned decoded", func() {
				So(err, ShouldBeNil)
				So(body, ShouldEqual, `{"total":0}`)
			})

			Convey("And the evaluated expression carries the call parameters", func() {
				So(tr.sent, ShouldHaveLength, 1)
				frame := string(tr.sent[0])
				So(frame, ShouldContainSubstring, "/content/v2/cms/series/x")
				So(frame, ShouldContainSubstring, "Bearer tok")
				So(frame, ShouldContainSubstring, `\"GET\"`)
				So(frame, ShouldContainSubstring, `"awaitPromise":true`)
			})
		})
	})
}

func TestWsTransportCorrelation(t *testing.T) {
	Convey("Given a debugger that interleaves unrelated frames", t, func() {
		server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
			var raw string
			if err := websocket.Message.Receive(ws, &raw); err != nil {
				return
			}
			var probe struct {
				ID int64 `json:"id"`
			}
			_ = json.Unmarshal([]byte(raw), &probe)

			// Event frame, a foreign response, garbage, then the real answer.
			_ = websocket.Message.Send(ws, `{"method":"Network.requestWillBeSent","params":{}}`)
			_ = websocket.Message.Send(ws, `{"id":999999,"result":{}}`)
			_ = websocket.Message.Send(ws, `not json`)
			_ = websocket.Message.Send(ws, `{"id":`+jsonInt(probe.ID)+`,"result":{"ok":true}}`)
		}))
		defer server.Close()

		wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
		tr, err := dialWS(wsURL, "http://localhost/", time.Second)
		So(err, ShouldBeNil)
		defer func() { _ = tr.Close() }()

		Convey("When a frame is round-tripped", func() {
			resp, err := tr.RoundTrip(context.Background(), []byte(`{"id":7,"method":"Page.enable"}`), 7, 2*time.Second)

			Convey("Then only the correlated frame is returned", func() {
				So(err, ShouldBeNil)
				So(string(resp), ShouldContainSubstring, `"id":7`)
				So(string(resp), ShouldContainSubstring, `"ok":true`)
			})
		})
	})
}

func TestPickTarget(t *testing.T) {
	Convey("Target selection", t, func() {
		targets := []Target{
			{Type: "page", URL: "about:blank", WebSocketDebuggerURL: "ws://a"},
			{Type: "page", URL: "https://www.crunchyroll.com/series/x", WebSocketDebuggerURL: "ws://b"},
			{Type: "service_worker", URL: "https://www.crunchyroll.com/sw.js", WebSocketDebuggerURL: "ws://c"},
		}

		Convey("A context already on the origin is preferred", func() {
			target, ok := pickTarget(targets, "https://www.crunchyroll.com")
			So(ok, ShouldBeTrue)
			So(target.WebSocketDebuggerURL, ShouldEqual, "ws://b")
		})

		Convey("Otherwise any page context is acceptable", func() {
			target, ok := pickTarget(targets[:1], "https://www.crunchyroll.com")
			So(ok, ShouldBeTrue)
			So(target.WebSocketDebuggerURL, ShouldEqual, "ws://a")
		})

		Convey("Non-page targets are never selected", func() {
			_, ok := pickTarget(targets[2:], "https://www.crunchyroll.com")
			So(ok, ShouldBeFalse)
		})
	})
}
