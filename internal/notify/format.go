package notify

import (
	"github.com/nyaruka/phonenumbers"
)

// DisplayNumber formats a normalized digits-only number for humans, e.g.
// "14155550100" -> "+1 415-555-0100". Numbers that fail to parse are shown
// as dialed.
func DisplayNumber(number string) string {
	if number == "" {
		return number
	}
	parsed, err := phonenumbers.Parse("+"+number, "")
	if err != nil {
		return number
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return number
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
}
