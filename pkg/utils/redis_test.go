package utils

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSlotScriptsCompile(t *testing.T) {
	if slotAcquireScript == nil || slotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestNewSlotLimiter_Validates(t *testing.T) {
	if _, err := NewSlotLimiter(nil, 1, time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := NewSlotLimiter(rdb, 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	l, err := NewSlotLimiter(rdb, 2, time.Hour)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := l.key("u1"); got != "zkypee:callslots:u1" {
		t.Fatalf("unexpected key %q", got)
	}
}
