package classify

import (
	"testing"

	"github.com/Veraticus/orderproof/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		location string
		want     bool
	}{
		{name: "exact label", text: "Work", location: "work", want: true},
		{name: "upper case with suffix", text: "WORK - 3rd floor", location: "work", want: true},
		{name: "address with building", text: "Work, Building 4", location: "work", want: true},
		{name: "different label", text: "Home", location: "work", want: false},
		{name: "empty text", text: "", location: "work", want: false},
		{name: "whitespace text", text: "   ", location: "work", want: false},
		{name: "empty location", text: "Work", location: "", want: false},
		{name: "location with padding", text: "Office HQ", location: "  office ", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := model.RawOrder{OrderID: "1", LocationText: tt.text}
			assert.Equal(t, tt.want, Matches(raw, tt.location))
		})
	}
}

func TestLocation_Match(t *testing.T) {
	classifier := NewLocation("Work")

	assert.True(t, classifier.Match(model.RawOrder{LocationText: "work"}))
	assert.False(t, classifier.Match(model.RawOrder{LocationText: "home"}))
	assert.Equal(t, "Work", classifier.String())
}
