package models

import "strings"

// SanitizeKeySegment escapes the ':' delimiter so a crafted identifier cannot
// address a neighbouring bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewIPKey returns the bucket key for scope and client IP.
func NewIPKey(scope, ip string) string {
	return "rl:" + SanitizeKeySegment(scope) + ":ip:" + SanitizeKeySegment(ip)
}
