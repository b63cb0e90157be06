package accessory

import (
	"strings"
	"unicode"

	"github.com/dokzlo13/solbridge/internal/sol"
)

// Manufacturer is reported in the accessory information service.
const Manufacturer = "SOL"

// Info is the accessory information block shown by the host.
type Info struct {
	Name             string `json:"name"`
	Manufacturer     string `json:"manufacturer"`
	Model            string `json:"model"`
	SerialNumber     string `json:"serial_number"`
	FirmwareRevision string `json:"firmware_revision"`
}

// InfoFor builds the information block for d.
func InfoFor(d *sol.Device) Info {
	return Info{
		Name:             DisplayName(d.Name),
		Manufacturer:     Manufacturer,
		Model:            d.Name,
		SerialNumber:     d.ID,
		FirmwareRevision: d.Version,
	}
}

// DisplayName sanitizes name for hosts that accept only letters, digits,
// spaces and apostrophes, starting and ending with a letter or digit.
// "Zimmer Mats-Ole" becomes "Zimmer Mats Ole".
func DisplayName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, name)

	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.TrimFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if cleaned == "" {
		return "SOL Device"
	}
	return cleaned
}
