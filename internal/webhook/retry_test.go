package webhook

import (
	"testing"
	"time"
)

func TestDelaySchedule(t *testing.T) {
	p := DefaultRetryPolicy() // initial 1s, multiplier 2, cap 60s, no jitter

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, tc := range cases {
		got := Delay(tc.attempt, p)
		if got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayRespectsCap(t *testing.T) {
	p := RetryPolicy{Initial: time.Second, Multiplier: 10, Cap: 5 * time.Second}
	if got := Delay(5, p); got != 5*time.Second {
		t.Errorf("Delay(5) = %v, want capped at 5s", got)
	}
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	p := RetryPolicy{Initial: 10 * time.Second, Multiplier: 1, Cap: time.Minute, Jitter: true}
	for i := 0; i < 50; i++ {
		got := Delay(1, p)
		if got < 8*time.Second || got > 12*time.Second {
			t.Fatalf("Delay with jitter = %v, want within +/-20%% of 10s", got)
		}
	}
}
