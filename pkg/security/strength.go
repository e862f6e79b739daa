// Package security scores and validates vault master passwords.
package security

import (
	"fmt"
	"strings"
	"unicode"
)

// MinPasswordLength is the shortest master password accepted as valid.
const MinPasswordLength = 12

// PasswordStrength represents the strength level of a master password.
type PasswordStrength int

const (
	PasswordWeak PasswordStrength = iota
	PasswordModerate
	PasswordGood
	PasswordStrong
	PasswordVeryStrong
)

// String returns a human-readable representation of the strength level.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordModerate:
		return "Moderate"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	case PasswordVeryStrong:
		return "Very strong"
	default:
		return "Unknown"
	}
}

// specialChars is the set counted as special for validation and scoring.
const specialChars = `!@#$%^&*()_+-=[]{};:"\|,.<>/?`

// commonPatterns are substrings that mark a password as guessable.
var commonPatterns = []string{
	"123", "abc", "qwerty", "password", "admin", "user", "test",
}

// ValidatePassword checks a candidate master password and returns
// whether it is acceptable plus a list of the requirements it misses.
func ValidatePassword(password string) (bool, []string) {
	var issues []string

	if len([]rune(password)) < MinPasswordLength {
		issues = append(issues, fmt.Sprintf("at least %d characters", MinPasswordLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		issues = append(issues, "at least 1 uppercase letter")
	}
	if !hasLower {
		issues = append(issues, "at least 1 lowercase letter")
	}
	if !hasDigit {
		issues = append(issues, "at least 1 digit")
	}
	if !hasSpecial {
		issues = append(issues, "at least 1 special character (!@#$%...)")
	}

	lower := strings.ToLower(password)
	for _, pattern := range commonPatterns {
		if strings.Contains(lower, pattern) {
			issues = append(issues, fmt.Sprintf("avoid common patterns (%s)", pattern))
			break
		}
	}

	if hasRepeatedRun(password) {
		issues = append(issues, "avoid repeated characters (aaa, 111)")
	}

	return len(issues) == 0, issues
}

// StrengthScore rates a password from 0 to 100. Length and character
// variety dominate; distinct characters add a smaller bonus.
func StrengthScore(password string) int {
	runes := []rune(password)
	score := min(len(runes)*2, 30)

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	unique := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		unique[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	if hasLower {
		score += 10
	}
	if hasUpper {
		score += 10
	}
	if hasDigit {
		score += 10
	}
	if hasSpecial {
		score += 15
	}
	score += min(len(unique)*2, 25)

	return min(score, 100)
}

// StrengthFromScore maps a 0-100 score to a strength level.
func StrengthFromScore(score int) PasswordStrength {
	switch {
	case score < 30:
		return PasswordWeak
	case score < 50:
		return PasswordModerate
	case score < 70:
		return PasswordGood
	case score < 90:
		return PasswordStrong
	default:
		return PasswordVeryStrong
	}
}

// hasRepeatedRun reports whether the password contains three or more of
// the same character in a row.
func hasRepeatedRun(password string) bool {
	var prev rune
	run := 0
	for _, r := range password {
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}
