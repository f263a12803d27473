package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"possale/internal/models"
	"possale/internal/websocket"
)

type stubFetcher struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Notification(nil), f.items...), nil
}

func (f *stubFetcher) set(items ...models.Notification) {
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

func (f *stubFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// tokenLog records the token of every stream connection.
type tokenLog struct {
	mu     sync.Mutex
	tokens []string
}

func (l *tokenLog) add(tok string) {
	l.mu.Lock()
	l.tokens = append(l.tokens, tok)
	l.mu.Unlock()
}

func (l *tokenLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tokens...)
}

func streamServer(t *testing.T, hub *websocket.Hub, log *tokenLog) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Query().Get("token"))
		hub.Serve(w, r, "till1")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
}

func TestManagerSeedsAndFollowsPushes(t *testing.T) {
	hub := websocket.NewHub(quietLogger())
	tokens := &tokenLog{}
	srv := streamServer(t, hub, tokens)
	fetcher := &stubFetcher{}
	fetcher.set(note(2), note(1))

	n := 0
	m := NewManager(Options{
		URL:     wsURL(srv),
		Fetcher: fetcher,
		Token: func(context.Context) (string, error) {
			n++
			return fmt.Sprintf("tok-%d", n), nil
		},
		RetryDelay: 10 * time.Millisecond,
		Logger:     quietLogger(),
	})
	m.Start(context.Background())
	defer m.Close()

	waitFor(t, "seed", func() bool { return m.Inbox().Len() == 2 })
	waitFor(t, "hub registration", func() bool { return hub.ClientCount() == 1 })
	if st := m.Status(); st.State != Connected || st.Offline {
		t.Errorf("Unexpected status %+v", st)
	}
	if got := tokens.list(); len(got) != 1 || got[0] != "tok-1" {
		t.Errorf("Expected token in query, got %v", got)
	}

	hub.PublishNotification(note(3))
	hub.PublishNotification(note(3))
	waitFor(t, "push", func() bool { return m.Inbox().Has(3) })
	hub.PublishUpdate(models.NotificationUpdate{Action: models.ActionRead, ID: 3})
	waitFor(t, "read", func() bool { return m.Inbox().Unread() == 2 })
	if got := ids(m.Inbox()); !sameIDs(got, []int64{3, 2, 1}) {
		t.Errorf("Expected [3 2 1], got %v", got)
	}

	// While disconnected, the server deletes 2 and 3 and adds 4. The full
	// fetch after reconnect is authoritative.
	fetcher.set(note(4), note(1))
	hub.CloseAll()
	waitFor(t, "refetch", func() bool { return fetcher.count() >= 2 && m.Inbox().Has(4) })
	if got := ids(m.Inbox()); !sameIDs(got, []int64{4, 1}) {
		t.Errorf("Expected [4 1] after reconnect, got %v", got)
	}
	waitFor(t, "reconnected", func() bool { return m.Status().State == Connected })
	if got := tokens.list(); len(got) < 2 || got[1] != "tok-2" {
		t.Errorf("Expected a fresh token per connection, got %v", got)
	}
}

func TestManagerGoesOfflineAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	fetcher := &stubFetcher{}
	m := NewManager(Options{
		URL:         url,
		Fetcher:     fetcher,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Logger:      quietLogger(),
	})
	m.Start(context.Background())
	waitFor(t, "offline", func() bool { return m.Status().Offline })

	st := m.Status()
	if st.Attempts != 3 || st.State != Disconnected || st.LastError == "" {
		t.Errorf("Unexpected status %+v", st)
	}
	if fetcher.count() != 0 {
		t.Errorf("Fetch should not run without a connection, ran %d times", fetcher.count())
	}

	m.Dismiss()
	if !m.Status().Dismissed {
		t.Error("Expected Dismiss to hide the offline indicator")
	}

	waitFor(t, "loop exit", func() bool { return m.Reconnect(context.Background()) })
	waitFor(t, "offline again", func() bool { return m.Status().Offline })
	if m.Status().Dismissed {
		t.Error("Reconnect should reset the dismissed flag")
	}
	m.Close()
}

func TestManagerFetchFailureGoesOffline(t *testing.T) {
	hub := websocket.NewHub(quietLogger())
	srv := streamServer(t, hub, &tokenLog{})
	fetcher := &stubFetcher{err: errors.New("notifications unavailable")}

	m := NewManager(Options{
		URL:         wsURL(srv),
		Fetcher:     fetcher,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Logger:      quietLogger(),
	})
	m.Start(context.Background())
	defer m.Close()

	waitFor(t, "offline", func() bool { return m.Status().Offline })
	st := m.Status()
	if st.Attempts != 3 || st.State != Disconnected || !strings.Contains(st.LastError, "notifications unavailable") {
		t.Errorf("Unexpected status %+v", st)
	}
	if n := fetcher.count(); n != 3 {
		t.Errorf("Expected one fetch per attempt, got %d", n)
	}
	if m.Inbox().Len() != 0 {
		t.Errorf("Inbox should stay empty without a seed, got %d", m.Inbox().Len())
	}
}

func TestManagerTokenFailureCountsAsAttempt(t *testing.T) {
	m := NewManager(Options{
		URL:         "ws://127.0.0.1:1/api/v1/stream",
		Fetcher:     &stubFetcher{},
		Token:       func(context.Context) (string, error) { return "", errors.New("session expired") },
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
		Logger:      quietLogger(),
	})
	m.Start(context.Background())
	defer m.Close()
	waitFor(t, "offline", func() bool { return m.Status().Offline })
	if st := m.Status(); st.LastError != "session expired" {
		t.Errorf("Expected token error, got %+v", st)
	}
}

func TestManagerCloseStopsLoop(t *testing.T) {
	hub := websocket.NewHub(quietLogger())
	srv := streamServer(t, hub, &tokenLog{})
	m := NewManager(Options{URL: wsURL(srv), Fetcher: &stubFetcher{}, Logger: quietLogger()})
	m.Start(context.Background())
	waitFor(t, "connected", func() bool { return m.Status().State == Connected })

	m.Close()
	if st := m.Status(); st.State != Disconnected || st.Offline {
		t.Errorf("Expected clean disconnect, got %+v", st)
	}
	if !m.Reconnect(context.Background()) {
		t.Error("Expected Reconnect to start a new loop after Close")
	}
	m.Close()
}
