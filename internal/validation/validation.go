package validation

import (
	"errors"
	"strings"
	"unicode"
)

// MaxTaskNameLength bounds task names taken from request paths.
const MaxTaskNameLength = 128

// ErrTaskNameEmpty is returned when the task name is empty or whitespace-only after trim.
var ErrTaskNameEmpty = errors.New("task name is required")

// ErrTaskNameTooLong is returned when the task name exceeds MaxTaskNameLength runes.
var ErrTaskNameTooLong = errors.New("task name too long")

// ErrTaskNameInvalidChars is returned when the task name contains disallowed characters.
var ErrTaskNameInvalidChars = errors.New("task name contains invalid characters")

// ValidateTaskName trims the input, enforces the length bound and restricts to ASCII
// letters, digits, colon, hyphen, underscore and dot. Returns the trimmed name or an
// error suitable for 400 INVALID_TASK responses.
func ValidateTaskName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrTaskNameEmpty
	}
	if n > MaxTaskNameLength {
		return "", ErrTaskNameTooLong
	}
	for _, c := range r {
		if !isAllowedTaskRune(c) {
			return "", ErrTaskNameInvalidChars
		}
	}
	return s, nil
}

func isAllowedTaskRune(r rune) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ':', '-', '_', '.':
		return true
	}
	return false
}
