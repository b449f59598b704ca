package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DailyPasscode returns the shared secret required to self-register as an
// admin or manager: the first six hex characters of SHA-256 over today's ISO
// date, uppercased. It is deterministic for a calendar day and carries no
// state. This is a low-assurance gate against casual privileged
// self-registration, not cryptographic access control.
func DailyPasscode() string {
	return DailyPasscodeAt(time.Now())
}

func DailyPasscodeAt(t time.Time) string {
	sum := sha256.Sum256([]byte(t.Format("2006-01-02")))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:6])
}
