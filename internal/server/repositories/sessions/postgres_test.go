package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/akimychev/converse/internal/common"
	"github.com/akimychev/converse/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+sessions\s*\(id,\s*title,\s*owner_id\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`

	mock.ExpectExec(q).
		WithArgs("s-1", "Greeting chat", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Session{ID: "s-1", Title: "Greeting chat", OwnerID: "u-1"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*COALESCE\(title,\s*''\),\s*owner_id,\s*created_at\s+FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).WithArgs("s-gone").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "s-gone")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected common.ErrorNotFound, got %v", err)
	}
}

func TestListByOwner_ReturnsRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*COALESCE\(title,\s*''\),\s*owner_id,\s*created_at\s+FROM\s+sessions\s+WHERE\s+owner_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s*$`

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "owner_id", "created_at"}).
		AddRow("s-1", "First", "u-1", now).
		AddRow("s-2", "Second", "u-1", now.Add(time.Minute))
	mock.ExpectQuery(q).WithArgs("u-1").WillReturnRows(rows)

	got, err := repo.ListByOwner(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s-1" || got[1].Title != "Second" {
		t.Fatalf("unexpected sessions: %+v", got)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).WithArgs("s-gone").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "s-gone"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected common.ErrorNotFound, got %v", err)
	}
}
