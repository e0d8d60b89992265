package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akimychev/converse/internal/client/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApp wires an App to a scripted stdin and a fake server.
func newTestApp(t *testing.T, input string, handler http.Handler) (*App, *bytes.Buffer) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	out := &bytes.Buffer{}
	app := &App{
		api:    api.New(ts.URL, time.Second),
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    out,
	}
	return app, out
}

func TestApp_RegisterAndLogin(t *testing.T) {
	orig := readPassword
	defer func() { readPassword = orig }()
	readPassword = func(fd int) ([]byte, error) { return []byte("pw123"), nil }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req["username"])
		assert.Equal(t, "alice@example.com", req["email"])
		assert.Equal(t, "pw123", req["password"])
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "a1", "refresh_token": "r1"})
	})

	input := "register\nalice\nalice@example.com\nlogin\nalice\nexit\n"
	app, out := newTestApp(t, input, mux)
	app.Run(context.Background())

	assert.Contains(t, out.String(), "Success!")
	assert.True(t, app.api.LoggedIn())
}

func TestApp_ChatMode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "a1", "refresh_token": "r1"})
	})
	mux.HandleFunc("POST /user/chats/new/text", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostFormValue("text"))
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "hi there", "session_id": "s-1", "title": "Greeting"})
	})
	mux.HandleFunc("POST /user/chats/s-1/text", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "more", r.PostFormValue("text"))
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "again", "session_id": "s-1"})
	})

	orig := readPassword
	defer func() { readPassword = orig }()
	readPassword = func(fd int) ([]byte, error) { return []byte("pw123"), nil }

	input := "login\nalice\nchat\nhello\nmore\n/back\nexit\n"
	app, out := newTestApp(t, input, mux)
	app.Run(context.Background())

	s := out.String()
	assert.Contains(t, s, "[session s-1: Greeting]", "chat mode rebinds to the minted session id")
	assert.Contains(t, s, "Assistant: hi there")
	assert.Contains(t, s, "Assistant: again")
}

func TestApp_ListAndShowChats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/chats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "s-1", "title": "First chat"}})
	})
	mux.HandleFunc("GET /user/chats/s-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]string{"id": "s-1", "title": "First chat"},
			"turns":   []map[string]any{{"seq": 1, "utterance": "hello", "reply": "hi there"}},
		})
	})

	input := "chats\nopen s-1\nexit\n"
	app, out := newTestApp(t, input, mux)
	app.Run(context.Background())

	s := out.String()
	assert.Contains(t, s, "s-1  First chat")
	assert.Contains(t, s, "You: hello")
	assert.Contains(t, s, "Assistant: hi there")
}

func TestApp_UnknownCommand(t *testing.T) {
	app, out := newTestApp(t, "frobnicate\nexit\n", http.NewServeMux())
	app.Run(context.Background())
	assert.Contains(t, out.String(), `unknown command "frobnicate"`)
}
