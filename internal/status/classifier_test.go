package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		current     int64
		capacity    int64
		warningPct  int
		criticalPct int
		want        Level
	}{
		{"well below warning", 50, 100, 85, 95, Green},
		{"just below warning", 84, 100, 85, 95, Green},
		{"at warning", 85, 100, 85, 95, Orange},
		{"between thresholds", 90, 100, 85, 95, Orange},
		{"at critical", 95, 100, 85, 95, Red},
		{"above critical", 96, 100, 85, 95, Red},
		{"full", 100, 100, 85, 95, Red},
		{"empty temple", 0, 100, 85, 95, Green},
		{"zero capacity", 0, 0, 85, 95, Green},
		{"zero capacity with occupants", 10, 0, 85, 95, Green},
		{"negative capacity", 10, -5, 85, 95, Green},
		{"custom thresholds", 60, 100, 50, 75, Orange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.current, tt.capacity, tt.warningPct, tt.criticalPct)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 5.0, Percentage(5, 100))
	assert.Equal(t, 96.0, Percentage(96, 100))
	assert.Equal(t, 33.3, Percentage(1, 3))
	assert.Equal(t, 0.0, Percentage(10, 0))
	assert.Equal(t, 0.0, Percentage(0, 500))
}
