package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// maxNumberAttempts bounds retries when a generated order number collides.
const maxNumberAttempts = 5

// NumberFunc produces a human-readable order number for time t.
type NumberFunc func(t time.Time) string

// NewNumber returns an order number of the form ORD-YYMMDD-NNNN using the UTC
// date of t and a random four digit suffix.
func NewNumber(t time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", t.UTC().Format("060102"), rand.IntN(10000))
}
