package models

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in cents.
type Money int64

const MaxPrice Money = 999999

var ErrInvalidMoney = errors.New("invalid money amount")

// ParseMoney reads a non-negative decimal with at most two fraction digits.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidMoney
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasDot && (frac == "" || len(frac) > 2) {
		return 0, ErrInvalidMoney
	}
	if !digits(whole) || !digits(frac) {
		return 0, ErrInvalidMoney
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidMoney
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, ErrInvalidMoney
	}
	if w > (1<<62)/100 {
		return 0, ErrInvalidMoney
	}
	return Money(w*100 + f), nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", int64(m)/100, int64(m)%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	if m < 0 {
		return nil, ErrInvalidMoney
	}
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts 9.99 as well as "9.99".
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		s = string(b[1 : len(b)-1])
	}
	v, err := ParseMoney(s)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMoney, s)
	}
	*m = v
	return nil
}
