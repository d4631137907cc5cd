package exec

import (
	"fmt"
	"strings"

	"github.com/orbitquery/queryengine/internal/registry"
)

// Mask applies fn to v, returning the redacted replacement value. Each
// function is given one concrete, deterministic shape; nil values pass
// through unmasked since there is nothing to redact.
func Mask(fn registry.MaskingFn, v any) any {
	if v == nil {
		return nil
	}
	s := fmt.Sprintf("%v", v)

	switch fn {
	case registry.MaskEmail:
		return maskEmail(s)
	case registry.MaskPhone:
		return maskTail(s, 4)
	case registry.MaskName:
		return maskFirstChar(s)
	case registry.MaskUUID:
		return maskTail(s, 4)
	case registry.MaskNumber:
		return "***"
	case registry.MaskDate:
		return maskDateToYear(s)
	case registry.MaskFull:
		return "***"
	default:
		return v
	}
}

// maskEmail keeps the domain, masking the local part down to its first
// character: "alice@acme.com" -> "a***@acme.com".
func maskEmail(s string) string {
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := s[:at], s[at:]
	return local[:1] + "***" + domain
}

// maskFirstChar keeps the first character, masking the rest: "Alice" ->
// "A***".
func maskFirstChar(s string) string {
	if s == "" {
		return "***"
	}
	r := []rune(s)
	return string(r[:1]) + "***"
}

// maskTail keeps the last n characters, masking everything before them:
// phone "+15551234567" with n=4 -> "***4567"; uuid likewise keeps its
// trailing segment for correlation without exposing the full value.
func maskTail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return "***"
	}
	return "***" + string(r[len(r)-n:])
}

// maskDateToYear keeps only the year component of an ISO-8601-ish date
// string: "2024-03-15" -> "2024-**-**".
func maskDateToYear(s string) string {
	if len(s) < 4 {
		return "****"
	}
	return s[:4] + "-**-**"
}
