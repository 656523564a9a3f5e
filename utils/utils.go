package utils

import (
	"math/rand"
	"strings"
	"time"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

func init() {
	rand.Seed(time.Now().UnixNano())
}

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RandomAlphabetString returns a lower case string of length n.
func RandomAlphabetString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// GetUrlExtNameWithDot returns ".png" for "a/b/c.png", empty string when
// there is no extension.
func GetUrlExtNameWithDot(name string) string {
	if idx := strings.Index(name, "?"); idx >= 0 {
		name = name[:idx]
	}
	slash := strings.LastIndex(name, "/")
	dot := strings.LastIndex(name, ".")
	if dot < 0 || dot < slash || dot == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[dot:])
}

// EmailLocalPart returns the part of an email before '@', or fallback when
// there is none.
func EmailLocalPart(email string, fallback string) string {
	idx := strings.Index(email, "@")
	if idx <= 0 {
		return fallback
	}
	return email[:idx]
}
