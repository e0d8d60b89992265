// Package responder declares the opaque reply-generation capability the
// coordinator depends on. Implementations wrap a model provider; they may be
// slow and may fail, and the coordinator treats them accordingly.
package responder

import (
	"context"

	"github.com/akimychev/converse/internal/server/conversation"
)

// Input is one turn's model input: the prompt text plus, for image turns,
// the image the question is about.
type Input struct {
	Text  string
	Image *Image
}

// Image is an inline image payload delivered to the model alongside the
// prompt text.
type Image struct {
	Data        []byte
	ContentType string
}

// Text wraps a plain prompt into an Input.
func Text(s string) Input {
	return Input{Text: s}
}

// Responder produces a reply given the conversation so far and a new input.
// The same capability is also invoked with conversation.TitlePrompt to derive
// a session title.
type Responder interface {
	Respond(ctx context.Context, state *conversation.State, in Input) (string, error)
}

// Func adapts a plain function to the Responder interface.
type Func func(ctx context.Context, state *conversation.State, in Input) (string, error)

func (f Func) Respond(ctx context.Context, state *conversation.State, in Input) (string, error) {
	return f(ctx, state, in)
}
