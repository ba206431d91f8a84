package chatstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createChatTable = `
CREATE TABLE IF NOT EXISTS live_chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	username   TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	temp_id    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and creates the messages table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("chatstore: postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("chatstore: connect postgres: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(initCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("chatstore: ping postgres: %w", err)
	}
	if _, err := pool.Exec(initCtx, createChatTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("chatstore: create table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, msg Message) (string, error) {
	msg = stamp(msg)
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO live_chat_messages (username, role, content, temp_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		msg.Username, msg.Role, msg.Content, msg.TempID, msg.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("chatstore: insert: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, role, content, temp_id, created_at
		FROM live_chat_messages
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("chatstore: query recent: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m  Message
			id int64
		)
		if err := rows.Scan(&id, &m.Username, &m.Role, &m.Content, &m.TempID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chatstore: scan: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatstore: rows: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
