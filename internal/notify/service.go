package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 100

// Service records and lists staff notifications.
type Service struct {
	repo Repository
}

// NewService constructs the notification service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record stores a new notification, assigning id and timestamp.
func (s *Service) Record(ctx context.Context, n Notification) error {
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	return s.repo.Insert(ctx, &n)
}

// List returns the most recent notifications, optionally unread only.
func (s *Service) List(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	return s.repo.List(ctx, unreadOnly, defaultListLimit)
}

// MarkRead marks one notification as read; marking twice is a no-op.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, id)
}

// MarkAllRead marks every unread notification as read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	return s.repo.MarkAllRead(ctx)
}
