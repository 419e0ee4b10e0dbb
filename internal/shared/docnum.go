package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxDocNumberRetries bounds the collision retry loop before callers
// switch to FallbackDocNumber.
const MaxDocNumberRetries = 10

// DocNumber produces a human-shareable document number candidate such as
// PR-20250114-3F2A9C. Uniqueness is enforced by the storage layer; callers
// retry on collision.
func DocNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}

// FallbackDocNumber produces a guaranteed-unique number after repeated
// collisions: nanosecond timestamp plus a random suffix. Ugly but alive.
func FallbackDocNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixNano(), suffix)
}

// ReferenceID produces an externally stable, shareable identifier.
func ReferenceID() string {
	return uuid.NewString()
}
