package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"households", "household_members", "locations", "products", "stock_lines", "shopping_items", "devices", "notification_preferences", "notification_log", "backups"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	boom := errors.New("boom")

	err = RunInTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO households (name, creator_id, invite_code) VALUES ('Casa', 'u1', 'ABCDEFGH')`); err != nil {
			t.Fatalf("insert: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM households`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("households = %d, want 0 after rollback", count)
	}
}

func TestRunInTxCommits(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	err = RunInTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO households (name, creator_id, invite_code) VALUES ('Casa', 'u1', 'ABCDEFGH')`)
		return err
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM households`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("households = %d, want 1", count)
	}
}
