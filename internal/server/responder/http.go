package responder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/akimychev/converse/internal/server/conversation"
)

// chatMessage is a request message. Content is either a plain string or, for
// image inputs, a list of content parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPResponder talks to an OpenAI-compatible chat completions endpoint. It
// sends the full conversation state plus the new input and returns the first
// choice. Image inputs travel as a base64 data URL content part. Timeouts and
// cancellation come from the caller's context.
type HTTPResponder struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewHTTPResponder builds a responder for the given chat completions
// endpoint.
func NewHTTPResponder(endpoint, apiKey, model string) *HTTPResponder {
	return &HTTPResponder{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{},
	}
}

func (r *HTTPResponder) Respond(ctx context.Context, state *conversation.State, in Input) (string, error) {
	messages := make([]chatMessage, 0, len(state.Messages)+1)
	for _, m := range state.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: conversation.RoleUser, Content: userContent(in)})

	body, err := json.Marshal(chatRequest{Model: r.model, Messages: messages})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	out := &chatResponse{}
	if err := json.Unmarshal(data, out); err != nil {
		return "", fmt.Errorf("model response decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("model call failed: %s", out.Error.Message)
		}
		return "", fmt.Errorf("model call failed: status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// userContent renders the new input: a bare string for text turns, a
// text-plus-image part list when an image is attached.
func userContent(in Input) any {
	if in.Image == nil {
		return in.Text
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		in.Image.ContentType, base64.StdEncoding.EncodeToString(in.Image.Data))
	return []contentPart{
		{Type: "text", Text: in.Text},
		{Type: "image_url", ImageURL: &imageURLPart{URL: dataURL}},
	}
}
