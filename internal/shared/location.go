package shared

import (
	"fmt"
	"strings"

	"github.com/assefaz/stockledger/internal/platform/httpx"
)

// Location identifies one of the two stock rooms.
type Location string

const (
	// LocationSede is the headquarters stock room.
	LocationSede Location = "sede"
	// Location506 is the stock room of the 506 building.
	Location506 Location = "506"
)

// ErrUnknownLocation is returned for anything but sede or 506.
var ErrUnknownLocation = fmt.Errorf("unknown location: %w", httpx.ErrValidation)

// Locations lists every stock room in display order.
func Locations() []Location {
	return []Location{LocationSede, Location506}
}

// ParseLocation normalises and validates a location code.
func ParseLocation(raw string) (Location, error) {
	loc := Location(strings.ToLower(strings.TrimSpace(raw)))
	if !loc.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLocation, raw)
	}
	return loc, nil
}

// Valid reports whether l is a known stock room.
func (l Location) Valid() bool {
	return l == LocationSede || l == Location506
}

// Label is the upper-case form used in report titles and file names.
func (l Location) Label() string {
	return strings.ToUpper(string(l))
}
