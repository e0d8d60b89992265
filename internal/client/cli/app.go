// Package cli is the interactive terminal client: a small command loop for
// account management plus a chat mode where every line is one turn.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/akimychev/converse/internal/client/api"
	"github.com/akimychev/converse/internal/client/config"
	"github.com/akimychev/converse/internal/common"
)

// App is the REPL over the API client.
type App struct {
	api    *api.Client
	reader *bufio.Reader
	out    io.Writer
}

// NewApp constructs the client application.
func NewApp(cfg *config.Config) (*App, error) {
	return &App{
		api:    api.New(cfg.ServerURL, cfg.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

const helpText = `Commands:
  register          create an account
  login             sign in
  chats             list your chat sessions
  open <id>         show a session's history
  delete <id>       delete a session
  chat [id]         enter chat mode ("new" session if no id)
  whoami            show the signed-in account
  help              this text
  exit              quit`

// Run executes the command loop until "exit" or EOF.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Converse client. Type 'help' for commands.")

	for {
		line, err := GetSimpleText(a.reader, "", a.out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(a.out, "input error: %v\n", err)
			return
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var cmdErr error
		switch cmd {
		case "":
			continue
		case "help":
			fmt.Fprintln(a.out, helpText)
		case "register":
			cmdErr = a.register(ctx)
		case "login":
			cmdErr = a.login(ctx)
		case "chats":
			cmdErr = a.listChats(ctx)
		case "open":
			cmdErr = a.showChat(ctx, arg)
		case "delete":
			cmdErr = a.deleteChat(ctx, arg)
		case "chat":
			cmdErr = a.chatLoop(ctx, arg)
		case "whoami":
			cmdErr = a.whoami(ctx)
		case "exit", "quit":
			return
		default:
			fmt.Fprintf(a.out, "unknown command %q, type 'help'\n", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintf(a.out, "error: %v\n", cmdErr)
		}
	}
}

func (a *App) register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username:", a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.reader, "Email:", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.api.Register(ctx, username, email, string(password)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Success!")
	return nil
}

func (a *App) login(ctx context.Context) error {
	login, err := GetSimpleText(a.reader, "Username or email:", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.api.Login(ctx, login, string(password)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Success!")
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	me, err := a.api.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s>\n", me.Username, me.Email)
	return nil
}

func (a *App) listChats(ctx context.Context) error {
	chats, err := a.api.Chats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(a.out, "no chats yet")
		return nil
	}
	for _, c := range chats {
		fmt.Fprintf(a.out, "%s  %s\n", c.ID, c.Title)
	}
	return nil
}

func (a *App) showChat(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("usage: open <id>")
	}
	detail, err := a.api.Chat(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "# %s\n", detail.Session.Title)
	for _, turn := range detail.Turns {
		fmt.Fprintf(a.out, "You: %s\nAssistant: %s\n", turn.Utterance, turn.Reply)
	}
	return nil
}

func (a *App) deleteChat(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("usage: delete <id>")
	}
	if err := a.api.DeleteChat(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deleted")
	return nil
}

// chatLoop is the conversation mode. Every plain line is one text turn;
// /doc and /img send files; /back returns to the command loop. The first
// turn of a "new" session rebinds the loop to the id the server minted.
func (a *App) chatLoop(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = common.NewSessionID
	}
	fmt.Fprintln(a.out, "Chat mode. /doc <path> [question], /img <path> [question], /back to leave.")

	for {
		line, err := GetSimpleText(a.reader, "", a.out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}
		if line == "/back" {
			return nil
		}

		var result *api.TurnResult
		var turnErr error
		switch {
		case strings.HasPrefix(line, "/doc "):
			result, turnErr = a.sendFileTurn(ctx, sessionID, strings.TrimPrefix(line, "/doc "), a.api.SendDocument)
		case strings.HasPrefix(line, "/img "):
			result, turnErr = a.sendFileTurn(ctx, sessionID, strings.TrimPrefix(line, "/img "), a.api.SendImage)
		default:
			result, turnErr = a.api.SendText(ctx, sessionID, line)
		}
		if turnErr != nil {
			fmt.Fprintf(a.out, "error: %v\n", turnErr)
			continue
		}

		if sessionID == common.NewSessionID {
			sessionID = result.SessionID
			fmt.Fprintf(a.out, "[session %s: %s]\n", result.SessionID, result.Title)
		}
		fmt.Fprintf(a.out, "Assistant: %s\n", result.Reply)
	}
}

type sendFileFunc func(ctx context.Context, sessionID, filename string, data []byte, contentType, text string) (*api.TurnResult, error)

func (a *App) sendFileTurn(ctx context.Context, sessionID, args string, send sendFileFunc) (*api.TurnResult, error) {
	path, question, _ := strings.Cut(strings.TrimSpace(args), " ")
	if path == "" {
		return nil, errors.New("usage: /doc <path> [question]")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return send(ctx, sessionID, filepath.Base(path), data, contentType, strings.TrimSpace(question))
}
