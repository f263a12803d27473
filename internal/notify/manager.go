package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"possale/internal/models"
)

type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
)

// Status is the connection view shown to the operator.
type Status struct {
	State ConnState `json:"state"`
	// Attempts counts consecutive failed connection attempts.
	Attempts int `json:"attempts"`
	// Offline is set once retries are exhausted. Only Reconnect clears it.
	Offline   bool   `json:"offline"`
	Dismissed bool   `json:"dismissed"`
	LastError string `json:"last_error,omitempty"`
}

type Options struct {
	// URL is the ws:// or wss:// stream endpoint. The token is added as the
	// "token" query parameter.
	URL         string
	Token       TokenSource
	Fetcher     Fetcher
	MaxAttempts int
	RetryDelay  time.Duration
	Dialer      *ws.Dialer
	Header      http.Header
	Logger      *logrus.Logger
}

const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 3 * time.Second
)

// Manager owns one stream connection and the inbox it feeds. Construct one
// per session and Close it on logout.
type Manager struct {
	opts Options
	log  logrus.FieldLogger

	mu      sync.Mutex
	status  Status
	inbox   Inbox
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	changes chan struct{}
}

func NewManager(opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = &ws.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	var log logrus.FieldLogger
	if opts.Logger != nil {
		log = opts.Logger.WithField("module", "notify")
	} else {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Manager{
		opts:    opts,
		log:     log,
		status:  Status{State: Disconnected},
		changes: make(chan struct{}, 1),
	}
}

// Start begins connecting in the background. It does nothing while a
// connection loop is already running.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status = Status{State: Disconnected}
	go m.run(ctx, m.done)
}

// Reconnect restarts after the manager went offline. It reports whether a
// new connection loop was started.
func (m *Manager) Reconnect(ctx context.Context) bool {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		return false
	}
	m.Start(ctx)
	return true
}

// Close stops the connection loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Dismiss hides the offline indicator without reconnecting.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	if m.status.Offline {
		m.status.Dismissed = true
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Inbox() Inbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inbox
}

// Changes signals after any status or inbox change. Signals coalesce, so
// readers should re-read Status and Inbox on each receive.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

func (m *Manager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func (m *Manager) setStatus(fn func(*Status)) {
	m.mu.Lock()
	fn(&m.status)
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) apply(ev InboxEvent) {
	m.mu.Lock()
	m.inbox = m.inbox.Apply(ev)
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	failures := 0
	for {
		m.setStatus(func(s *Status) { s.State = Connecting })
		seeded, err := m.session(ctx)
		if ctx.Err() != nil {
			m.setStatus(func(s *Status) { s.State = Disconnected })
			return
		}
		if seeded {
			failures = 0
		}
		failures++
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		m.log.WithFields(logrus.Fields{"attempt": failures, "error": msg}).Warn("stream disconnected")
		if failures >= m.opts.MaxAttempts {
			m.setStatus(func(s *Status) {
				*s = Status{State: Disconnected, Attempts: failures, Offline: true, LastError: msg}
			})
			return
		}
		m.setStatus(func(s *Status) {
			s.State = Disconnected
			s.Attempts = failures
			s.LastError = msg
		})

		t := time.NewTimer(m.opts.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			m.setStatus(func(s *Status) { s.State = Disconnected })
			return
		case <-t.C:
		}
	}
}

// session runs one connection. It reports whether the inbox was seeded
// from a full fetch, and the error that ended it. A connection that never
// seeds counts as a failed attempt.
func (m *Manager) session(ctx context.Context) (bool, error) {
	target, err := m.streamURL(ctx)
	if err != nil {
		return false, err
	}
	conn, _, err := m.opts.Dialer.DialContext(ctx, target, m.opts.Header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	events := make(chan InboxEvent, 64)
	readErr := make(chan error, 1)
	go m.read(conn, events, readErr, stop)

	// The fetch runs after the reader is live so nothing pushed while it is
	// in flight is lost; duplicates are dropped by the inbox.
	items, err := m.opts.Fetcher.Fetch(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch notifications: %w", err)
	}
	m.apply(Seeded{Items: items})
	m.setStatus(func(s *Status) {
		*s = Status{State: Connected}
	})

	for {
		select {
		case ev := <-events:
			m.apply(ev)
		case err := <-readErr:
			for {
				select {
				case ev := <-events:
					m.apply(ev)
				default:
					return true, err
				}
			}
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func (m *Manager) read(conn *ws.Conn, events chan<- InboxEvent, readErr chan<- error, stop <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		ev, err := decodeFrame(data)
		if err != nil {
			m.log.WithError(err).Warn("dropping malformed stream frame")
			continue
		}
		if ev == nil {
			continue
		}
		select {
		case events <- ev:
		case <-stop:
			return
		}
	}
}

func (m *Manager) streamURL(ctx context.Context) (string, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return "", err
	}
	if m.opts.Token != nil {
		token, err := m.opts.Token(ctx)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

var errUnknownAction = errors.New("unknown notification action")

// decodeFrame maps a wire frame to an inbox event. Unknown frame types are
// ignored and return a nil event.
func decodeFrame(data []byte) (InboxEvent, error) {
	var msg models.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case models.StreamNotification:
		var n models.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			return nil, err
		}
		return Pushed{Notification: n}, nil
	case models.StreamNotificationUpdate:
		var u models.NotificationUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			return nil, err
		}
		switch u.Action {
		case models.ActionRead, models.ActionReadAll, models.ActionDelete, models.ActionDeleteAll:
			return Updated{Update: u}, nil
		}
		return nil, errUnknownAction
	}
	return nil, nil
}
