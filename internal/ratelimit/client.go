package ratelimit

import (
	"context"
	"time"

	"gopartsync_api/pkg/middleware"
)

// AdmitMiddleware отклоняет исходящий запрос с *RejectedError, если квота исчерпана.
func (l *Limiter) AdmitMiddleware(key string, class Class) middleware.Middleware {
	return func(next middleware.RequestFunc) middleware.RequestFunc {
		return func(ctx context.Context, method, endpoint string, requestBody, response interface{}) error {
			if d := l.Admit(key, class); !d.Allowed {
				return &RejectedError{Class: class, Key: key, Reason: d.Reason, RetryAfter: d.RetryAfter}
			}
			return next(ctx, method, endpoint, requestBody, response)
		}
	}
}

// WaitMiddleware при отказе ждёт RetryAfter и повторяет допуск, пока не истечёт ctx.
func (l *Limiter) WaitMiddleware(key string, class Class) middleware.Middleware {
	return func(next middleware.RequestFunc) middleware.RequestFunc {
		return func(ctx context.Context, method, endpoint string, requestBody, response interface{}) error {
			if err := l.Wait(ctx, key, class); err != nil {
				return err
			}
			return next(ctx, method, endpoint, requestBody, response)
		}
	}
}

// Wait блокируется до допуска запроса или отмены ctx.
func (l *Limiter) Wait(ctx context.Context, key string, class Class) error {
	for {
		d := l.Admit(key, class)
		if d.Allowed {
			return nil
		}
		timer := time.NewTimer(d.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
