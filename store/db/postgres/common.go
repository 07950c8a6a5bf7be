package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// placeholder returns the positional placeholder for PostgreSQL ($1, $2, ...).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n positional placeholders starting at $1.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// isUniqueViolation reports whether the error is a unique constraint failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// pqStringArray wraps a string slice for use with = ANY($n).
func pqStringArray(list []string) any {
	return pq.Array(list)
}
