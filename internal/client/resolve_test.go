package client

import (
	"testing"
	"time"
)

func TestResolveDeterministic(t *testing.T) {
	t1 := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	// Given T1 < T2, the T2 side wins no matter which side is local.
	if got := Resolve(t1, t2); got != ResolutionRemoteWins {
		t.Errorf("Resolve(T1, T2) = %q, want remote_wins", got)
	}
	if got := Resolve(t2, t1); got != ResolutionLocalWins {
		t.Errorf("Resolve(T2, T1) = %q, want local_wins", got)
	}
}

func TestResolveTieKeepsIncumbent(t *testing.T) {
	now := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	if got := Resolve(now, now); got != ResolutionLocalWins {
		t.Errorf("Resolve(T, T) = %q, want local_wins", got)
	}
}
