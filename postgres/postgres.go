// Package postgres persists read markers in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres implements engine.MarkerStore on a PostgreSQL database.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// A readMarker is one user's last-read watermark for one conversation.
type readMarker struct {
	bun.BaseModel `bun:"table:read_markers"`

	UserID         string    `bun:"user_id,pk"`
	ConversationID string    `bun:"conversation_id,pk"`
	LastReadAt     time.Time `bun:"last_read_at,notnull"`
}

// Load returns every read marker stored for the user.
func (pg *Postgres) Load(ctx context.Context, userID string) (map[string]time.Time, error) {
	var rows []readMarker
	err := pg.bun.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.ConversationID] = row.LastReadAt
	}
	return out, nil
}

// Save upserts one conversation's read marker.
func (pg *Postgres) Save(ctx context.Context, userID, conversationID string, readAt time.Time) error {
	m := &readMarker{
		UserID:         userID,
		ConversationID: conversationID,
		LastReadAt:     readAt,
	}
	_, err := pg.bun.NewInsert().
		Model(m).
		On("CONFLICT (user_id, conversation_id) DO UPDATE").
		Set("last_read_at = EXCLUDED.last_read_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// Delete drops one conversation's read marker.
func (pg *Postgres) Delete(ctx context.Context, userID, conversationID string) error {
	_, err := pg.bun.NewDelete().
		Model((*readMarker)(nil)).
		Where("user_id = ?", userID).
		Where("conversation_id = ?", conversationID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
