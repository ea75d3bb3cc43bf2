package flaresolverr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// solverStub mimics the solver's single JSON endpoint.
type solverStub struct {
	creates  atomic.Int64
	gets     atomic.Int64
	destroys atomic.Int64

	failGets bool
}

func (s *solverStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd command
		_ = json.NewDecoder(r.Body).Decode(&cmd)

		switch cmd.Cmd {
		case "sessions.create":
			s.creates.Add(1)
			_ = json.NewEncoder(w).Encode(envelope{Status: "ok", Session: "session-1"})
		case "request.get":
			s.gets.Add(1)
			if s.failGets {
				_ = json.NewEncoder(w).Encode(envelope{Status: "error", Message: "challenge failed"})
				return
			}
			_ = json.NewEncoder(w).Encode(envelope{Status: "ok", Solution: &Solution{
				URL:      cmd.URL,
				Status:   200,
				Response: "<html>rendered</html>",
			}})
		case "sessions.destroy":
			s.destroys.Add(1)
			_ = json.NewEncoder(w).Encode(envelope{Status: "ok"})
		}
	}
}

func TestEnsure(t *testing.T) {
	Convey("Given a reachable solver", t, func() {
		stub := &solverStub{}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		client := New(server.URL)

		Convey("When many goroutines ensure the session at once", func() {
			var wg sync.WaitGroup
			sessions := make([]string, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					sessions[i], _ = client.Ensure(context.Background())
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one session is created and shared", func() {
				So(stub.creates.Load(), ShouldEqual, 1)
				for _, s := range sessions {
					So(s, ShouldEqual, "session-1")
				}
			})
		})
	})
}

func TestGet(t *testing.T) {
	Convey("Given a solver with a live session", t, func() {
		stub := &solverStub{}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		client := New(server.URL)

		Convey("When a page is fetched", func() {
			solution, err := client.Get(context.Background(), "https://example.test/series/x")

			Convey("Then the rendered solution comes back through the session", func() {
				So(err, ShouldBeNil)
				So(solution.Response, ShouldContainSubstring, "rendered")
				So(stub.creates.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the solver reports a failed challenge", func() {
			stub.failGets = true
			_, err := client.Get(context.Background(), "https://example.test/blocked")

			Convey("Then the failure surfaces with the solver's message", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "challenge failed")
			})
		})
	})
}

func TestDestroy(t *testing.T) {
	Convey("Given a client holding a session", t, func() {
		stub := &solverStub{}
		server := httptest.NewServer(stub.handler())
		defer server.Close()

		client := New(server.URL)
		_, err := client.Ensure(context.Background())
		So(err, ShouldBeNil)

		Convey("When the session is destroyed", func() {
			client.Destroy()

			Convey("Then the remote session is torn down once", func() {
				So(stub.destroys.Load(), ShouldEqual, 1)
			})

			Convey("And destroying again is a no-op", func() {
				client.Destroy()
				So(stub.destroys.Load(), ShouldEqual, 1)
			})

			Convey("And the next use creates a fresh session", func() {
				_, err := client.Ensure(context.Background())
				So(err, ShouldBeNil)
				So(stub.creates.Load(), ShouldEqual, 2)
			})
		})
	})
}
