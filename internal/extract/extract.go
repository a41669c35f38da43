// Package extract provides pure text scanners for the tokens the
// conversation router cares about: email addresses and 6-digit OTP codes.
package extract

import (
	"regexp"
)

const otpLength = 6

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Email returns the first email-shaped substring in text: alphanumerics and
// ._%+- in the local part, dot-separated domain labels, TLD of two or more
// letters. The second return is false when no match exists.
func Email(text string) (string, bool) {
	m := emailPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// OTP returns the first run of exactly six consecutive decimal digits that is
// not adjacent to other digits. Runs of five or fewer and seven or more
// digits never match, so a 10-digit phone number contains no OTP token.
//
// Go's RE2 engine has no lookarounds, so the digit-boundary rule is enforced
// by scanning runs directly rather than with `(?<!\d)\d{6}(?!\d)`.
func OTP(text string) (string, bool) {
	runStart := -1
	for i := 0; i <= len(text); i++ {
		digit := i < len(text) && text[i] >= '0' && text[i] <= '9'
		if digit {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 && i-runStart == otpLength {
			return text[runStart:i], true
		}
		runStart = -1
	}
	return "", false
}
