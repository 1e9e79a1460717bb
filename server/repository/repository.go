package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/ponyo877/chatrelay/server/usecase"
)

const sqliteDriverName = "sqlite3_chatrelay"

var registerDriver sync.Once

// OpenSQLite は書き込みの永続性を優先した PRAGMA 付きで SQLite を開きます。
func OpenSQLite(dsn string) (*sql.DB, error) {
	registerDriver.Do(func() {
		sql.Register(sqliteDriverName,
			&sqlite3.SQLiteDriver{
				ConnectHook: func(conn *sqlite3.SQLiteConn) error {
					for _, pragma := range []string{
						"PRAGMA journal_mode = WAL",
						"PRAGMA synchronous = FULL",
						"PRAGMA busy_timeout = 5000",
					} {
						if _, err := conn.Exec(pragma, nil); err != nil {
							return fmt.Errorf("failed to apply %q: %w", pragma, err)
						}
					}
					return nil
				},
			})
	})
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return db, nil
}

// Migrate はテーブルが無ければ作成します。
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username        TEXT PRIMARY KEY,
			password_digest TEXT NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS private_messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			sender     TEXT NOT NULL,
			recipient  TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_private_messages_pair ON private_messages (sender, recipient)`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) usecase.Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	query := "INSERT INTO users (username, password_digest, created_at) VALUES (?, ?, ?) ON CONFLICT(username) DO NOTHING"
	result, err := r.db.ExecContext(ctx, query, user.Username, user.PasswordDigest, r.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert user %s: %w", user.Username, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, username string) (domain.User, error) {
	query := "SELECT username, password_digest FROM users WHERE username = ?"
	var name, digest string
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&name, &digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("error querying user: %w", err)
	}
	return domain.NewUser(name, digest), nil
}

func (r *Repository) CreatePrivateMessage(ctx context.Context, message domain.PrivateMessage) error {
	query := "INSERT INTO private_messages (sender, recipient, body, created_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, message.Sender, message.Recipient, message.Body, message.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert private message: %w", err)
	}
	return nil
}

func (r *Repository) ListPrivateMessages(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error) {
	query := `
		SELECT sender, recipient, body, created_at FROM private_messages
		WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("failed to query private messages between %s and %s: %w", userA, userB, err)
	}
	defer rows.Close()

	var sender, recipient, body string
	var createdAt int64
	messages := []domain.PrivateMessage{}
	for rows.Next() {
		if err := rows.Scan(&sender, &recipient, &body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan private message: %w", err)
		}
		messages = append(messages, domain.NewPrivateMessage(sender, recipient, body, time.Unix(0, createdAt)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over private messages: %w", err)
	}
	return messages, nil
}
