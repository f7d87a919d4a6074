package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Angkor Coffee Beans", want: "angkor-coffee-beans"},
		{in: "  Crème Brûlée  ", want: "creme-brulee"},
		{in: "Kampot Pepper (100g)", want: "kampot-pepper-100g"},
		{in: "---Silk--Scarf---", want: "silk-scarf"},
		{in: "ម្រេចកំពត Pepper", want: "pepper"},
		{in: "ម្រេចកំពត", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.in))
		})
	}
}

func TestCandidate(t *testing.T) {
	assert.Equal(t, "silk", Candidate("silk", 1))
	assert.Equal(t, "silk-2", Candidate("silk", 2))
	assert.Equal(t, "silk-10", Candidate("silk", 10))
}
