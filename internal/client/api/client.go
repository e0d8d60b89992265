// Package api is the HTTP client for the server's public API. It keeps the
// issued token pair and transparently retries one authorized request after a
// refresh when the access token has expired.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/akimychev/converse/internal/common"
)

// Client talks to one server with one signed-in identity.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	accessToken  string
	refreshToken string
}

// User is the account as the server reports it.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is one conversation thread header.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one utterance/reply pair of a chat.
type Turn struct {
	Seq       int64     `json:"seq"`
	Utterance string    `json:"utterance"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatDetail is a chat header plus its full ordered turn log.
type ChatDetail struct {
	Session Chat   `json:"session"`
	Turns   []Turn `json:"turns"`
}

// TurnResult is the outcome of sending one turn.
type TurnResult struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New creates a Client for the given server base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LoggedIn reports whether the client holds an access token.
func (c *Client) LoggedIn() bool {
	return c.accessToken != ""
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/register", bytes.NewReader(body), "application/json", false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	return nil
}

// Login exchanges credentials for a token pair. The login value may be a
// username or an email.
func (c *Client) Login(ctx context.Context, login, password string) error {
	form := url.Values{"username": {login}, "password": {password}}

	resp, err := c.do(ctx, http.MethodPost, "/token", strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return c.readTokenPair(resp.Body)
}

// Refresh rotates the refresh token and stores the new pair.
func (c *Client) Refresh(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"refresh_token": c.refreshToken})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/token/refresh", bytes.NewReader(body), "application/json", false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return c.readTokenPair(resp.Body)
}

// Me returns the signed-in account.
func (c *Client) Me(ctx context.Context) (*User, error) {
	out := &User{}
	if err := c.getJSON(ctx, "/user", out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAccount removes the signed-in account and everything it owns.
func (c *Client) DeleteAccount(ctx context.Context) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/user", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	c.accessToken = ""
	c.refreshToken = ""
	return nil
}

// Chats lists the user's conversation threads.
func (c *Client) Chats(ctx context.Context) ([]Chat, error) {
	var out []Chat
	if err := c.getJSON(ctx, "/user/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat returns one thread with its full turn log.
func (c *Client) Chat(ctx context.Context, id string) (*ChatDetail, error) {
	out := &ChatDetail{}
	if err := c.getJSON(ctx, "/user/chats/"+id, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteChat removes one thread.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/user/chats/"+id, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

// SendText sends one text turn. Use common.NewSessionID to open a thread.
func (c *Client) SendText(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	form := url.Values{"text": {text}}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/user/chats/"+sessionID+"/text",
		func() io.Reader { return strings.NewReader(form.Encode()) }, "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	return readTurnResult(resp)
}

// SendDocument sends a document turn with an optional question.
func (c *Client) SendDocument(ctx context.Context, sessionID, filename string, data []byte, contentType, text string) (*TurnResult, error) {
	return c.sendFile(ctx, "/user/chats/"+sessionID+"/document", filename, data, contentType, text)
}

// SendImage sends an image turn with an optional question.
func (c *Client) SendImage(ctx context.Context, sessionID, filename string, data []byte, contentType, text string) (*TurnResult, error) {
	return c.sendFile(ctx, "/user/chats/"+sessionID+"/image", filename, data, contentType, text)
}

func (c *Client) sendFile(ctx context.Context, path, filename string, data []byte, contentType, text string) (*TurnResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if text != "" {
		if err := mw.WriteField("text", text); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	raw := buf.Bytes()

	resp, err := c.doAuthorized(ctx, http.MethodPost, path, func() io.Reader {
		return bytes.NewReader(raw)
	}, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return readTurnResult(resp)
}

// --- plumbing ---

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, authorized bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authorized {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerSchemePrefix+c.accessToken)
	}
	return c.httpClient.Do(req)
}

// doAuthorized performs an authorized request and retries it once after a
// token refresh on 401. The body is supplied as a factory so the retry gets
// a fresh reader.
func (c *Client) doAuthorized(ctx context.Context, method, path string, makeBody func() io.Reader, contentType string) (*http.Response, error) {
	var body io.Reader
	if makeBody != nil {
		body = makeBody()
	}

	resp, err := c.do(ctx, method, path, body, contentType, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.refreshToken == "" {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	if makeBody != nil {
		body = makeBody()
	} else {
		body = nil
	}
	return c.do(ctx, method, path, body, contentType, true)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) readTokenPair(r io.Reader) error {
	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r).Decode(&tok); err != nil {
		return err
	}
	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	return nil
}

func readTurnResult(resp *http.Response) (*TurnResult, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	out := &TurnResult{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

func apiError(resp *http.Response) error {
	e := &errorResponse{}
	if err := json.NewDecoder(resp.Body).Decode(e); err == nil && e.Detail != "" {
		return fmt.Errorf("server: %s (status %d)", e.Detail, resp.StatusCode)
	}
	return fmt.Errorf("server: status %d", resp.StatusCode)
}
