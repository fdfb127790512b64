package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information. Audit records are internal-only
// and callers treat logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.ActorUserID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Actor identifies who performed an admin action and from where.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// LogCreditAdjustment records an admin balance change.
func (s *Service) LogCreditAdjustment(ctx context.Context, actor Actor, targetUserID string, amount decimal.Decimal, referenceID, message, metadata string) error {
	if targetUserID == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:         EventTypeCreditAdjustment,
		ActorUserID:  actor.UserID,
		ActorRole:    actor.Role,
		IPAddress:    actor.IP,
		TargetUserID: targetUserID,
		Amount:       amount,
		ReferenceID:  referenceID,
		Message:      message,
		Metadata:     metadata,
	})
}
