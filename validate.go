package auth

import (
	"fmt"
	"strings"
	"unicode"
)

// PasswordPolicy configures ValidatePasswordStrength. The zero value applies
// only the default minimum length.
type PasswordPolicy struct {
	MinLength             int
	RequireUpper          bool
	RequireLower          bool
	RequireDigit          bool
	RequireSymbol         bool
	RejectCommonPasswords bool
}

// DefaultPasswordPolicy mirrors the strictest production posture.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:             12,
		RequireUpper:          true,
		RequireLower:          true,
		RequireDigit:          true,
		RequireSymbol:         true,
		RejectCommonPasswords: true,
	}
}

// commonPasswords is a small denylist of known-weak values; checked
// case-insensitively after stripping digits-only suffix variants is NOT
// attempted, exact matches only.
var commonPasswords = map[string]struct{}{
	"password":      {},
	"password1":     {},
	"password123":   {},
	"passw0rd":      {},
	"letmein":       {},
	"qwerty123456":  {},
	"123456789012":  {},
	"iloveyou12345": {},
	"admin1234567":  {},
	"welcome12345":  {},
}

const maxEmailLength = 254

// ValidateEmail checks structural validity of an email candidate. Pure
// function: no I/O, never panics, always returns a result pair. Uniqueness is
// the caller's concern against storage.
func ValidateEmail(candidate string) (bool, string) {
	if candidate == "" {
		return false, "email is required"
	}
	if len(candidate) > maxEmailLength {
		return false, fmt.Sprintf("email must be at most %d characters", maxEmailLength)
	}

	at := strings.LastIndex(candidate, "@")
	if at <= 0 || at == len(candidate)-1 {
		return false, "email must have the form local@domain"
	}

	local, domain := candidate[:at], candidate[at+1:]

	if !validLocalPart(local) {
		return false, "email local part is not valid"
	}

	if !validDomain(domain) {
		return false, "email domain is not valid"
	}

	return true, ""
}

func validLocalPart(local string) bool {
	if local == "" || len(local) > 64 {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	if strings.Contains(local, "..") {
		return false
	}
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-/=?^_`{|}~.", r):
		default:
			return false
		}
	}
	return true
}

func validDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}

	for _, label := range labels {
		if !validDomainLabel(label) {
			return false
		}
	}

	// TLD must not be fully numeric
	tld := labels[len(labels)-1]
	allDigits := true
	for _, r := range tld {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	return !allDigits
}

func validDomainLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidatePasswordStrength applies policy rules in a fixed order and returns
// on the first failing rule so callers always get a deterministic message.
// The associated email's local part may never appear inside the password.
func ValidatePasswordStrength(password, associatedEmail string, policy PasswordPolicy) (bool, string) {
	minLength := policy.MinLength
	if minLength <= 0 {
		minLength = 12
	}

	if len(password) < minLength {
		return false, fmt.Sprintf("password must be at least %d characters long", minLength)
	}

	if policy.RequireUpper && !containsClass(password, unicode.IsUpper) {
		return false, "password must contain an uppercase letter"
	}

	if policy.RequireLower && !containsClass(password, unicode.IsLower) {
		return false, "password must contain a lowercase letter"
	}

	if policy.RequireDigit && !containsClass(password, unicode.IsDigit) {
		return false, "password must contain a digit"
	}

	if policy.RequireSymbol && !containsSymbol(password) {
		return false, "password must contain a symbol"
	}

	if local := emailLocalPart(associatedEmail); local != "" {
		if strings.Contains(strings.ToLower(password), strings.ToLower(local)) {
			return false, "password must not contain your email address"
		}
	}

	if policy.RejectCommonPasswords {
		if _, weak := commonPasswords[strings.ToLower(password)]; weak {
			return false, "password is too common"
		}
	}

	return true, ""
}

func containsClass(s string, class func(rune) bool) bool {
	for _, r := range s {
		if class(r) {
			return true
		}
	}
	return false
}

func containsSymbol(s string) bool {
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return true
		}
	}
	return false
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return ""
}
