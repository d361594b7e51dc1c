// Package classify filters orders by their delivery location.
package classify

import (
	"strings"

	"github.com/Veraticus/orderproof/internal/model"
)

// Matches reports whether the order was delivered to location. The test is a
// case-insensitive substring match; blank text on either side never matches.
func Matches(raw model.RawOrder, location string) bool {
	text := strings.ToLower(strings.TrimSpace(raw.LocationText))
	want := strings.ToLower(strings.TrimSpace(location))
	if text == "" || want == "" {
		return false
	}
	return strings.Contains(text, want)
}

// Location is a Classifier bound to one configured delivery location.
type Location struct {
	value string
}

// NewLocation creates a classifier for the given location label.
func NewLocation(location string) Location {
	return Location{value: location}
}

// Match implements service.Classifier.
func (l Location) Match(raw model.RawOrder) bool {
	return Matches(raw, l.value)
}

// String returns the configured location label.
func (l Location) String() string {
	return l.value
}
