package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewPostgresSink(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auth_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := NewPostgresSink(db); err != nil {
		t.Fatalf("NewPostgresSink() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresSinkAppendAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auth_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	sink, err := NewPostgresSink(db)
	if err != nil {
		t.Fatalf("NewPostgresSink() error: %v", err)
	}

	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO auth_logs").
		WithArgs("u1", "user#0001", "g1", ActionAuth, StatusSuccess, "done").
		WillReturnRows(sqlmock.NewRows([]string{"id", "timestamp"}).AddRow(int64(7), now))

	stored, err := sink.Append(context.Background(), Entry{
		ActorID:  "u1",
		ActorTag: "user#0001",
		GuildID:  "g1",
		Action:   ActionAuth,
		Status:   StatusSuccess,
		Detail:   "done",
	})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if stored.ID != "7" || !stored.Timestamp.Equal(now) {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}

	rows := sqlmock.NewRows([]string{"id", "user_id", "user_tag", "guild_id", "action", "status", "details", "timestamp"}).
		AddRow(int64(7), "u1", "user#0001", "g1", ActionAuth, StatusSuccess, "done", now)
	mock.ExpectQuery("SELECT id, user_id, user_tag, guild_id, action, status").
		WithArgs("g1", DefaultListLimit).
		WillReturnRows(rows)

	listed, err := sink.List(context.Background(), "g1", 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "7" || listed[0].Detail != "done" {
		t.Fatalf("unexpected listed entries: %+v", listed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}
