package model

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

const (
	// NoDateSentinel is how the source encodes a missing date
	NoDateSentinel = "0000-00-00"

	// DateLayout is the layout of every date column
	DateLayout = "2006-01-02"

	// MaxValueLength caps free-text values stored on a Change
	MaxValueLength = 200

	// NullDisplay is how a null value is rendered on a Change
	NullDisplay = "None"
)

// NormalizeDate returns a valid date string, or null for empty input,
// NoDateSentinel, and anything that does not parse as DateLayout.
func NormalizeDate(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" || s == NoDateSentinel {
		return sql.NullString{}
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ParseWaitingDays parses a waiting-day counter; invalid or negative input is null.
func ParseWaitingDays(s string) sql.NullInt64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullInt64{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

// Truncate returns at most MaxValueLength runes of s.
func Truncate(s string) string {
	if len(s) <= MaxValueLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxValueLength {
		return s
	}
	return string(runes[:MaxValueLength])
}

// DisplayDate renders a nullable date the way Change values carry it.
func DisplayDate(d sql.NullString) string {
	if !d.Valid {
		return NullDisplay
	}
	return d.String
}
