package lateness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsArrivalLate(t *testing.T) {
	start := time.Date(2024, 4, 2, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timeIn    time.Time
		tolerance time.Duration
		want      bool
	}{
		{"early", start.Add(-10 * time.Minute), 5 * time.Minute, false},
		{"exactly on time", start, 0, false},
		{"inside tolerance", start.Add(4 * time.Minute), 5 * time.Minute, false},
		{"at tolerance edge", start.Add(5 * time.Minute), 5 * time.Minute, false},
		{"past tolerance", start.Add(5*time.Minute + time.Second), 5 * time.Minute, true},
		{"zero tolerance one second late", start.Add(time.Second), 0, true},
		{"mid shift join", start.Add(10 * time.Minute), 5 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsArrivalLate(start, tt.timeIn, tt.tolerance))
		})
	}
}

func TestIsDepartureEarly(t *testing.T) {
	end := time.Date(2024, 4, 2, 22, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timeOut   time.Time
		tolerance time.Duration
		want      bool
	}{
		{"after end", end.Add(time.Minute), 5 * time.Minute, false},
		{"exactly at end", end, 0, false},
		{"inside tolerance", end.Add(-3 * time.Minute), 5 * time.Minute, false},
		{"at tolerance edge", end.Add(-5 * time.Minute), 5 * time.Minute, false},
		{"an hour early", end.Add(-time.Hour), 5 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDepartureEarly(end, tt.timeOut, tt.tolerance))
		})
	}
}

func TestClassifier(t *testing.T) {
	c := Classifier{ArrivalTolerance: 10 * time.Minute, DepartureTolerance: time.Minute}
	start := time.Date(2024, 4, 2, 18, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	assert.False(t, c.ArrivedLate(start, start.Add(9*time.Minute)))
	assert.True(t, c.ArrivedLate(start, start.Add(11*time.Minute)))
	assert.False(t, c.LeftEarly(end, end.Add(-30*time.Second)))
	assert.True(t, c.LeftEarly(end, end.Add(-2*time.Minute)))
}
