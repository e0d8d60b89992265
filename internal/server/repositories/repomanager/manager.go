package repomanager

import (
	"context"
	"database/sql"

	"github.com/akimychev/converse/internal/dbx"
	"github.com/akimychev/converse/internal/server/repositories/refreshtokens"
	"github.com/akimychev/converse/internal/server/repositories/sessions"
	"github.com/akimychev/converse/internal/server/repositories/turns"
	"github.com/akimychev/converse/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can use
// the same repository code against either the pool or an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Turns(db dbx.DBTX) turns.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
