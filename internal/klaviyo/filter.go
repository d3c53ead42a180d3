package klaviyo

import (
	"fmt"
	"strings"
	"time"
)

// Filter expression helpers for the API's query language, e.g.
// equals(messages.channel,'email'),greater-or-equal(updated_at,2024-01-01T00:00:00Z)

// Equals constrains a string field to a value.
func Equals(field, value string) string {
	return fmt.Sprintf("equals(%s,'%s')", field, value)
}

// EqualsID constrains an identifier field; identifiers are double-quoted.
func EqualsID(field, id string) string {
	return fmt.Sprintf("equals(%s,%q)", field, id)
}

// GreaterOrEqual constrains a timestamp field to t or later.
func GreaterOrEqual(field string, t time.Time) string {
	return fmt.Sprintf("greater-or-equal(%s,%s)", field, formatTime(t))
}

// LessThan constrains a timestamp field to strictly before t.
func LessThan(field string, t time.Time) string {
	return fmt.Sprintf("less-than(%s,%s)", field, formatTime(t))
}

// Combine joins filter clauses with the API's AND separator.
func Combine(clauses ...string) string {
	return strings.Join(clauses, ",")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
