package common

import (
	"errors"

	"github.com/lib/pq"
)

// IsUniqueViolation проверяет, что ошибка — нарушение уникального
// ограничения Postgres (код 23505). Опционально сужает проверку
// до конкретного constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	if constraint == "" {
		return true
	}
	return pqErr.Constraint == constraint
}
