package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"possale/internal/models"
)

// Fetcher performs the full, non-streaming inbox fetch.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Notification, error)
}

// TokenSource returns a fresh stream token for each connection attempt.
type TokenSource func(ctx context.Context) (string, error)

// API talks to the counter's REST endpoints with an authenticated session.
type API struct {
	BaseURL string
	Client  *http.Client
	// Header is sent on every request, typically the session cookie.
	Header http.Header
}

func (a *API) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (a *API) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(a.BaseURL, "/")+path, &buf)
	if err != nil {
		return err
	}
	for k, vs := range a.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Fetch returns every notification the server holds.
func (a *API) Fetch(ctx context.Context) ([]models.Notification, error) {
	var env struct {
		Data []models.Notification `json:"data"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/notifications", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// StreamToken asks for a short-lived stream token.
func (a *API) StreamToken(ctx context.Context) (string, error) {
	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/v1/stream-token", nil, &env); err != nil {
		return "", err
	}
	return env.Data.Token, nil
}

// Login opens a session and keeps its cookie in Header.
func (a *API) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(a.BaseURL, "/")+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: status %d", resp.StatusCode)
	}
	if a.Header == nil {
		a.Header = http.Header{}
	}
	for _, c := range resp.Cookies() {
		a.Header.Add("Cookie", c.Name+"="+c.Value)
	}
	return nil
}

// StreamURL turns the API base URL into the websocket stream endpoint.
func (a *API) StreamURL() string {
	u := strings.TrimSuffix(a.BaseURL, "/") + "/api/v1/stream"
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}
