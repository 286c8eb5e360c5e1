package model

import (
	"regexp"
	"strings"
)

var innLabeled = regexp.MustCompile(`(?i)ИНН[\s:№]*(\d{10,12})\b`)

// IsINNLength reports whether s is a 10- or 12-digit string. This is the only
// check applied when accepting an INN.
func IsINNLength(s string) bool {
	if len(s) != 10 && len(s) != 12 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExtractINN returns the first labeled INN ("ИНН 7701234567") in free text.
// Bare digit runs are ignored: amounts and phone numbers share the length.
func ExtractINN(text string) string {
	for _, m := range innLabeled.FindAllStringSubmatch(text, -1) {
		if IsINNLength(m[1]) {
			return m[1]
		}
	}
	return ""
}

// NormalizeINN strips whitespace and returns s if it has a valid length.
func NormalizeINN(s string) string {
	s = strings.Join(strings.Fields(s), "")
	if IsINNLength(s) {
		return s
	}
	return ""
}

var (
	innWeights10 = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	innWeights11 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	innWeights12 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// ValidINNChecksum applies the official control-digit algorithm. It is
// informational only; lots are never rejected on it.
func ValidINNChecksum(s string) bool {
	if !IsINNLength(s) {
		return false
	}
	d := make([]int, len(s))
	for i, r := range s {
		d[i] = int(r - '0')
	}
	check := func(weights []int) int {
		sum := 0
		for i, w := range weights {
			sum += w * d[i]
		}
		return sum % 11 % 10
	}
	if len(d) == 10 {
		return check(innWeights10) == d[9]
	}
	return check(innWeights11) == d[10] && check(innWeights12) == d[11]
}
