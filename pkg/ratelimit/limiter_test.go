package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.Rate() != 10 {
		t.Errorf("Rate() = %v, want 10", rl.Rate())
	}
	if rl.Burst() != 20 {
		t.Errorf("Burst() = %v, want 20", rl.Burst())
	}

	// burst не меньше rate
	rl = NewRateLimiter(5, 2)
	if rl.Burst() != 5 {
		t.Errorf("Burst() = %v, want 5", rl.Burst())
	}
}

func TestRateLimiter_AllowBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, burst ещё не исчерпан", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow() после исчерпания burst должен вернуть false")
	}
}

func TestRateLimiter_WaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(0.5, 1)
	rl.Allow() // забираем единственный токен

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait() должен вернуть ошибку: токен появится позже дедлайна")
	}
}
