// This file implements ChatService, the session consistency coordinator: per
// turn it resolves conversation state (cache hit or durable-log replay),
// invokes the responder, commits the turn durably, and refreshes the cache.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akimychev/converse/internal/common"
	"github.com/akimychev/converse/internal/dbx"
	"github.com/akimychev/converse/internal/logging"
	"github.com/akimychev/converse/internal/server/cache"
	"github.com/akimychev/converse/internal/server/config"
	"github.com/akimychev/converse/internal/server/conversation"
	"github.com/akimychev/converse/internal/server/models"
	"github.com/akimychev/converse/internal/server/repositories/repomanager"
	"github.com/akimychev/converse/internal/server/responder"
	"github.com/google/uuid"
)

// Default questions when a document or image arrives without accompanying text.
const (
	DefaultDocumentQuestion = "What is in this document?"
	DefaultImageQuestion    = "What is in this image?"
)

// TurnResult is what a completed turn returns to the caller.
type TurnResult struct {
	Reply     string
	SessionID string
	Title     string
}

// Extractor is the external document-text-extraction collaborator.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// UploadStore validates incoming uploads and archives accepted ones.
type UploadStore interface {
	ValidateDocument(u Upload) error
	ValidateImage(u Upload) error
	Archive(ctx context.Context, u Upload) (string, error)
}

// ChatService coordinates the two storage tiers for conversation turns.
//
// The durable turn append is the commit point of a turn. The cache write that
// follows is best-effort: if it fails the turn still succeeded, and the next
// request rebuilds state from the log. The reverse is forbidden: the cache is
// never written unless the durable write committed.
type ChatService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       cache.ConversationCache
	responder   responder.Responder
	extractor   Extractor
	uploads     UploadStore
	logger      logging.Logger
	timeout     time.Duration

	// locks serializes turns per session id. Two concurrent turns on one
	// session would otherwise race between the state read and the cache
	// write and could commit turns whose order disagrees with the cached
	// state. Entries are dropped once the last holder releases.
	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewChatService constructs the coordinator.
func NewChatService(db *sql.DB, m repomanager.RepositoryManager, c cache.ConversationCache,
	r responder.Responder, e Extractor, u UploadStore, l logging.Logger, cfg *config.Config) *ChatService {
	timeout := cfg.ResponderTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatService{
		db:          db,
		repomanager: m,
		cache:       c,
		responder:   r,
		extractor:   e,
		uploads:     u,
		logger:      l.With("module", "chat_service"),
		timeout:     timeout,
		locks:       make(map[string]*sessionLock),
	}
}

// ProcessTextTurn runs one text turn. sessionID is either an existing session
// id owned by ownerID or the literal "new".
func (s *ChatService) ProcessTextTurn(ctx context.Context, ownerID, sessionID, text string) (*TurnResult, error) {
	return s.processTurn(ctx, ownerID, sessionID, responder.Text(text), text)
}

// ProcessDocumentTurn validates the upload, archives it, extracts its text
// through the external extractor, and runs a turn whose model input is the
// extracted context plus the user's question. Only the question is recorded
// as the turn's utterance, mirroring the text flow.
func (s *ChatService) ProcessDocumentTurn(ctx context.Context, ownerID, sessionID, text string, upload Upload) (*TurnResult, error) {
	if err := s.uploads.ValidateDocument(upload); err != nil {
		return nil, err
	}
	if err := s.archiveUpload(ctx, upload); err != nil {
		return nil, err
	}

	extracted, err := s.extractor.Extract(ctx, upload.Filename, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("document extraction: %w", err)
	}

	if text == "" {
		text = DefaultDocumentQuestion
	}
	prompt := extracted + " " + text

	return s.processTurn(ctx, ownerID, sessionID, responder.Text(prompt), text)
}

// ProcessImageTurn validates and archives the upload, then runs a turn that
// carries the image bytes to the responder alongside the user's question.
func (s *ChatService) ProcessImageTurn(ctx context.Context, ownerID, sessionID, text string, upload Upload) (*TurnResult, error) {
	if err := s.uploads.ValidateImage(upload); err != nil {
		return nil, err
	}
	if err := s.archiveUpload(ctx, upload); err != nil {
		return nil, err
	}

	if text == "" {
		text = DefaultImageQuestion
	}

	in := responder.Input{
		Text:  text,
		Image: &responder.Image{Data: upload.Data, ContentType: upload.ContentType},
	}
	return s.processTurn(ctx, ownerID, sessionID, in, text)
}

// processTurn is the consistency core. in drives the responder; utterance is
// what the durable log and conversation state record.
func (s *ChatService) processTurn(ctx context.Context, ownerID, sessionID string, in responder.Input, utterance string) (*TurnResult, error) {
	isNew := sessionID == common.NewSessionID

	var (
		state *conversation.State
		title string
	)

	if isNew {
		// No session row, no cache entry, and nobody else can address this
		// conversation until the id exists, so no lock is needed yet.
		state = conversation.NewState()
	} else {
		unlock := s.lockSession(sessionID)
		defer unlock()

		sess, err := s.authorizeSession(ctx, ownerID, sessionID)
		if err != nil {
			return nil, err
		}
		title = sess.Title

		state, err = s.resolveState(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	reply, err := s.respond(ctx, state, in)
	if err != nil {
		return nil, err
	}

	state.Append(utterance, reply)

	if isNew {
		title, err = s.respond(ctx, state, responder.Text(conversation.TitlePrompt))
		if err != nil {
			return nil, err
		}
		title = strings.TrimSpace(title)
		sessionID = uuid.New().String()
	}

	turn := &models.Turn{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Utterance: utterance,
		Reply:     reply,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if isNew {
			sess := &models.Session{ID: sessionID, Title: title, OwnerID: ownerID}
			if err := s.repomanager.Sessions(tx).Create(ctx, sess); err != nil {
				return err
			}
		}
		return s.repomanager.Turns(tx).Append(ctx, turn)
	}); err != nil {
		return nil, fmt.Errorf("turn commit: %w", err)
	}

	// The turn is committed. From here on nothing may fail it.
	if err := s.cache.Set(ctx, sessionID, state); err != nil {
		s.logger.Warn(ctx, "cache write failed after commit", "session_id", sessionID, "error", err.Error())
	}

	return &TurnResult{Reply: reply, SessionID: sessionID, Title: title}, nil
}

// authorizeSession is the ownership gate for every session-scoped operation.
func (s *ChatService) authorizeSession(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	sess, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if sess.OwnerID != ownerID {
		return nil, common.ErrorForbidden
	}
	return sess, nil
}

// resolveState implements the cache-aside read: cache hit wins, anything else
// replays the durable log. A cache error degrades to a rebuild and a warning,
// never to a failed turn.
func (s *ChatService) resolveState(ctx context.Context, sessionID string) (*conversation.State, error) {
	state, ok, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "cache read failed, rebuilding from log", "session_id", sessionID, "error", err.Error())
	} else if ok {
		return state, nil
	}

	turns, err := s.repomanager.Turns(s.db).ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("turn log read: %w", err)
	}
	return conversation.Replay(turns), nil
}

// respond invokes the responder under the configured timeout. On any failure
// the caller must not have committed anything yet; processTurn calls it before
// any write.
func (s *ChatService) respond(ctx context.Context, state *conversation.State, in responder.Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.responder.Respond(ctx, state, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", common.ErrResponderTimeout
		}
		return "", fmt.Errorf("%w: %s", common.ErrResponderFailure, err.Error())
	}
	return reply, nil
}

// archiveUpload stores the accepted upload before the turn runs, so a
// committed document or image turn always has its source file in the
// archive. A turn that fails after this point may leave an orphan object.
func (s *ChatService) archiveUpload(ctx context.Context, upload Upload) error {
	key, err := s.uploads.Archive(ctx, upload)
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	s.logger.Info(ctx, "upload archived", "filename", upload.Filename, "storage_key", key)
	return nil
}

func (s *ChatService) lockSession(sessionID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.locksMu.Unlock()
	}
}
