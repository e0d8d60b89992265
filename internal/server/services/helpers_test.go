package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/akimychev/converse/internal/common"
	"github.com/akimychev/converse/internal/dbx"
	"github.com/akimychev/converse/internal/logging"
	"github.com/akimychev/converse/internal/server/config"
	"github.com/akimychev/converse/internal/server/conversation"
	"github.com/akimychev/converse/internal/server/models"
	refreshtokensrepo "github.com/akimychev/converse/internal/server/repositories/refreshtokens"
	sessionsrepo "github.com/akimychev/converse/internal/server/repositories/sessions"
	turnsrepo "github.com/akimychev/converse/internal/server/repositories/turns"
	usersrepo "github.com/akimychev/converse/internal/server/repositories/users"
	"github.com/akimychev/converse/internal/server/responder"
)

// --- shared test helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.DiscardHandler))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = 4 // keep hashing fast in tests
	cfg.ResponderTimeout = time.Second
	return cfg
}

// --- fake repositories ---

type fakeUsersRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byName  map[string]*models.User
	byEmail map[string]*models.User

	createErr error
	deleted   []string
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{
		byID:    map[string]*models.User{},
		byName:  map[string]*models.User{},
		byEmail: map[string]*models.User{},
	}
}

func (f *fakeUsersRepo) add(u *models.User) {
	f.byID[u.ID] = u
	f.byName[u.UserName] = u
	f.byEmail[u.Email] = u
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, taken := f.byName[u.UserName]; taken {
		return nil, common.ErrorAlreadyExists
	}
	if _, taken := f.byEmail[u.Email]; taken {
		return nil, common.ErrorAlreadyExists
	}
	u.CreatedAt = time.Now()
	f.add(u)
	return u, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byName[username]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	delete(f.byName, u.UserName)
	delete(f.byEmail, u.Email)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSessionsRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	created  []*models.Session
	deleted  []string

	createErr error
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{sessions: map[string]*models.Session{}}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	s.CreatedAt = time.Now()
	f.sessions[s.ID] = s
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSessionsRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeSessionsRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Session
	for _, s := range f.sessions {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionsRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.sessions, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeTurnsRepo struct {
	mu        sync.Mutex
	logs      map[string][]*models.Turn
	listCalls int

	appendErr error
}

func newFakeTurnsRepo() *fakeTurnsRepo {
	return &fakeTurnsRepo{logs: map[string][]*models.Turn{}}
}

func (f *fakeTurnsRepo) Append(ctx context.Context, turn *models.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	turn.Seq = int64(len(f.logs[turn.SessionID]) + 1)
	turn.CreatedAt = time.Now()
	f.logs[turn.SessionID] = append(f.logs[turn.SessionID], turn)
	return nil
}

func (f *fakeTurnsRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]*models.Turn, len(f.logs[sessionID]))
	copy(out, f.logs[sessionID])
	return out, nil
}

func (f *fakeTurnsRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.logs[sessionID])), nil
}

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken

	created []string
	removed []string

	createErr error
	deleteErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	f.created = append(f.created, token)
	return nil
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[token]; ok {
		return t, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.tokens[token]; !ok {
		return common.ErrorNotFound
	}
	delete(f.tokens, token)
	f.removed = append(f.removed, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteForUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, k)
			f.removed = append(f.removed, k)
		}
	}
	return nil
}

type fakeRepoManager struct {
	u  *fakeUsersRepo
	se *fakeSessionsRepo
	tu *fakeTurnsRepo
	rt *fakeRefreshRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u:  newFakeUsersRepo(),
		se: newFakeSessionsRepo(),
		tu: newFakeTurnsRepo(),
		rt: newFakeRefreshRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error            { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                  { return m.u }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository            { return m.se }
func (m *fakeRepoManager) Turns(db dbx.DBTX) turnsrepo.Repository                  { return m.tu }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository  { return m.rt }

// --- stub responder ---

// scriptedResponder answers from a script keyed by input text and records the
// state and image (if any) it saw for each call.
type scriptedResponder struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	seen    []*conversation.State
	images  []*responder.Image
}

func newScriptedResponder() *scriptedResponder {
	return &scriptedResponder{replies: map[string]string{}, errs: map[string]error{}}
}

func (r *scriptedResponder) Respond(ctx context.Context, state *conversation.State, in responder.Input) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, state.Clone())
	r.images = append(r.images, in.Image)
	if err, ok := r.errs[in.Text]; ok {
		return "", err
	}
	if reply, ok := r.replies[in.Text]; ok {
		return reply, nil
	}
	// Deterministic fallback derived from visible history length, so two
	// identical histories always produce the same reply.
	return fmt.Sprintf("reply-%d-%s", len(state.Messages), in.Text), nil
}

// --- fake upload store ---

// fakeUploadStore keeps the real validation rules but archives to memory.
type fakeUploadStore struct {
	*UploadService
	mu         sync.Mutex
	archived   []Upload
	archiveErr error
}

func newFakeUploadStore(cfg *config.Config) *fakeUploadStore {
	return &fakeUploadStore{UploadService: NewUploadService(cfg)}
}

func (f *fakeUploadStore) Archive(ctx context.Context, u Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archiveErr != nil {
		return "", f.archiveErr
	}
	f.archived = append(f.archived, u)
	return "uploads/fake/" + u.Filename, nil
}

// failingCache wraps errors around every operation.
type failingCache struct{ err error }

func (c *failingCache) Get(ctx context.Context, sessionID string) (*conversation.State, bool, error) {
	return nil, false, c.err
}
func (c *failingCache) Set(ctx context.Context, sessionID string, state *conversation.State) error {
	return c.err
}
func (c *failingCache) Invalidate(ctx context.Context, sessionID string) error { return c.err }
