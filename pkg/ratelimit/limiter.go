package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter - token bucket для исходящих запросов к внешним сервисам
//
// Обёртка над golang.org/x/time/rate:
//
//	limiter := NewRateLimiter(5, 10) // 5 req/sec, burst 10
//	err := limiter.Wait(ctx)         // блокирующее ожидание
//	if limiter.Allow() { ... }       // неблокирующая проверка
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter создаёт новый rate limiter
// rate <= 0 даёт 10 req/sec, burst <= 0 даёт 2x rate
func NewRateLimiter(r, burst float64) *RateLimiter {
	if r <= 0 {
		r = 10
	}
	if burst <= 0 {
		burst = r * 2
	}
	if burst < r {
		burst = r
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(r), int(burst))}
}

// Wait блокирует до появления токена или отмены контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.lim.Wait(ctx)
}

// Allow забирает токен без ожидания
func (rl *RateLimiter) Allow() bool {
	return rl.lim.Allow()
}

func (rl *RateLimiter) Rate() float64 {
	return float64(rl.lim.Limit())
}

func (rl *RateLimiter) Burst() int {
	return rl.lim.Burst()
}
