package logger

import (
	"net/url"
	"strings"
	"unicode"
)

// query keys whose values never reach the access log
var sensitiveQueryKeys = map[string]struct{}{
	"identifier": {},
	"email":      {},
	"phone":      {},
	"token":      {},
	"secret":     {},
	"api_key":    {},
	"auth":       {},
}

// SanitizedIdentifier masks an email-or-phone login identifier
func SanitizedIdentifier(identifier string) string {
	switch {
	case identifier == "":
		return ""
	case strings.Contains(identifier, "@"):
		return maskEmail(identifier)
	default:
		return maskPhone(identifier)
	}
}

// maskEmail keeps the first character of the local part and the TLD,
// e.g. "alice@example.com" becomes "a****@*******.com"
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(domain, ".")
	for i := range labels[:len(labels)-1] {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}
	return local + "@" + strings.Join(labels, ".")
}

// maskPhone keeps separators and the last two digits
func maskPhone(phone string) string {
	total := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			total++
		}
	}
	if total < 4 {
		return "[invalid-phone]"
	}

	seen := 0
	return strings.Map(func(r rune) rune {
		if !unicode.IsDigit(r) {
			return r
		}
		seen++
		if seen > total-2 {
			return r
		}
		return '*'
	}, phone)
}

// HasSensitiveQuery reports whether a raw query string names a parameter
// that must be redacted. Unparseable queries are treated as sensitive.
func HasSensitiveQuery(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}
	for key := range values {
		if _, ok := sensitiveQueryKeys[strings.ToLower(key)]; ok {
			return true
		}
	}
	return false
}
