package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CredentialError marks a provider response that means the stored credential
// is no longer usable (expired grant, revoked access). The sync engine aborts
// the batch on it instead of burning through every event.
type CredentialError struct {
	StatusCode int
	Body       string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("calendar credential rejected (status=%d): %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// Client talks to the external calendar provider's OAuth and events API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Token is a provider-issued token pair. RefreshToken may be empty on a
// refresh response; the caller keeps the previous one then.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthURL is where the business owner is sent to grant calendar access.
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("scope", "calendar.events")
	q.Set("access_type", "offline")
	q.Set("state", state)
	return c.cfg.BaseURL + "/oauth/authorize?" + q.Encode()
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	return c.tokenRequest(ctx, form)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return Token{}, &CredentialError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Token{}, fmt.Errorf("token endpoint status=%d, body=%s", resp.StatusCode, string(b))
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Token{}, err
	}
	if body.AccessToken == "" {
		return Token{}, fmt.Errorf("token endpoint returned no access_token")
	}
	expiresIn := body.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// Event is one reservation projected onto the provider's calendar.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

type eventBody struct {
	Summary     string         `json:"summary"`
	Description string         `json:"description,omitempty"`
	Start       eventTime      `json:"start"`
	End         eventTime      `json:"end"`
	Attendees   []attendee     `json:"attendees,omitempty"`
	Reminders   eventReminders `json:"reminders"`
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type attendee struct {
	Email string `json:"email"`
}

type eventReminders struct {
	UseDefault bool       `json:"useDefault"`
	Overrides  []reminder `json:"overrides"`
}

type reminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

// UpsertEvent creates the event when ev.ID is empty and updates it otherwise.
// Every event carries an email reminder a day ahead and a popup an hour ahead.
func (c *Client) UpsertEvent(ctx context.Context, accessToken string, ev Event) (string, error) {
	body := eventBody{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.Start.Location().String()},
		End:         eventTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.End.Location().String()},
		Reminders: eventReminders{
			Overrides: []reminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
			},
		},
	}
	for _, email := range ev.Attendees {
		if email == "" {
			continue
		}
		body.Attendees = append(body.Attendees, attendee{Email: email})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	method := http.MethodPost
	endpoint := c.cfg.BaseURL + "/v3/calendars/primary/events"
	if ev.ID != "" {
		method = http.MethodPut
		endpoint += "/" + url.PathEscape(ev.ID)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b, _ := io.ReadAll(resp.Body)
		return "", &CredentialError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("events API status=%d, body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("events API returned no event id")
	}
	return out.ID, nil
}
