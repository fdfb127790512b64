package audit

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestService_AppendRequiresActorAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeCreditAdjustment}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{ActorUserID: "admin"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.LogCreditAdjustment(context.Background(), Actor{UserID: "admin"}, "", decimal.NewFromInt(1), "", "", ""); err == nil {
		t.Fatalf("expected error for missing target")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	actor := Actor{UserID: "admin-1", Role: "admin", IP: "1.2.3.4"}
	if err := svc.LogCreditAdjustment(context.Background(), actor, "u1", decimal.RequireFromString("2.50"), "ticket-9", "goodwill", "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.IPAddress != "1.2.3.4" || e.TargetUserID != "u1" {
		t.Fatalf("expected actor ip and target captured: %+v", e)
	}
	if e.Type != EventTypeCreditAdjustment || e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected stamped credit_adjustment event: %+v", e)
	}
	if !e.Amount.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("expected amount 2.50, got %s", e.Amount)
	}
}
