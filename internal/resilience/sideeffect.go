package resilience

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Attempt runs a non-critical side effect such as a usage log insert or a
// candidate snapshot. Errors and panics are logged and swallowed; the caller
// never sees them. It reports whether fn succeeded.
func Attempt(ctx context.Context, op string, fn func(context.Context) error, fields ...zap.Field) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("side effect panicked",
				append(fields, zap.String("op", op), zap.String("panic", fmt.Sprint(r)))...)
			ok = false
		}
	}()
	if err := fn(ctx); err != nil {
		zap.L().Warn("side effect failed",
			append(fields, zap.String("op", op), zap.Error(err))...)
		return false
	}
	return true
}
