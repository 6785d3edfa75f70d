package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals a missing notification id.
var ErrNotFound = errors.New("notification not found")

// Repository persists notifications.
type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	List(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed notification repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, n *Notification) error {
	var metadata []byte
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshal notification metadata: %w", err)
		}
		metadata = raw
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, type, devis_id, title, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, string(n.Type), n.DevisID, n.Title, n.Message, metadata, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *repository) List(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error) {
	query := `
		SELECT id, type, devis_id, title, message, metadata, read_at, created_at
		FROM notifications`
	if unreadOnly {
		query += ` WHERE read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Notification
	for rows.Next() {
		var (
			n        Notification
			typ      string
			devisID  pgtype.Text
			metadata []byte
			readAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&n.ID, &typ, &devisID, &n.Title, &n.Message, &metadata, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		if devisID.Valid {
			n.DevisID = devisID.String
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("decode notification metadata: %w", err)
			}
		}
		all = append(all, n)
	}
	return all, rows.Err()
}

func (r *repository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE id = $1 AND read_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already read; check which.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *repository) MarkAllRead(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE read_at IS NULL`)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
