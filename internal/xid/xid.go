package xid

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a time-ordered identifier of the form "<prefix>-<uuid v7>".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}

// Code returns a short upper-case random code of n hex characters (max 32).
func Code(n int) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n < 1 || n > len(raw) {
		return raw
	}
	return raw[:n]
}

// Confirmation formats "<prefix>-YYYYMMDD-XXXXXXXX" for the given day.
func Confirmation(prefix string, at time.Time) string {
	return prefix + "-" + at.UTC().Format("20060102") + "-" + Code(8)
}
