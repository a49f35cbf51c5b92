package entities

import (
	"regexp"
	"strings"
)

// Profile is the engine's read view of the externally-owned contact/consent
// store. The engine only writes it through the consent feedback path (STOP
// keywords, hard bounces).
type Profile struct {
	UserID       string
	Email        string
	Phone        string
	ConsentEmail bool
	ConsentSMS   bool
	Timezone     string
}

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// HasValidPhone reports whether the stored phone is usable as an SMS
// destination (E.164).
func (p Profile) HasValidPhone() bool {
	return e164Pattern.MatchString(strings.TrimSpace(p.Phone))
}

func (p Profile) HasEmail() bool {
	value := strings.TrimSpace(p.Email)
	return value != "" && strings.Contains(value, "@")
}
