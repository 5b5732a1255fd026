package clock

import (
	"testing"
	"time"
)

func TestNow_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	result := Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	mockTime := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	first := mock.Now()
	mock.Advance(time.Hour)
	second := mock.Now()

	if !first.Equal(mockTime) {
		t.Errorf("Before Advance, Now() = %v, expected %v", first, mockTime)
	}
	if want := mockTime.Add(time.Hour); !second.Equal(want) {
		t.Errorf("After Advance, Now() = %v, expected %v", second, want)
	}
	if got := mock.Since(mockTime); got != time.Hour {
		t.Errorf("Since() = %v, expected 1h", got)
	}
}

func TestMockClock_Set(t *testing.T) {
	mock := NewMockClock(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))

	newTime := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(newTime)

	if result := mock.Now(); !result.Equal(newTime) {
		t.Errorf("After Set, Now() = %v, expected %v", result, newTime)
	}
}

func TestSetDefault(t *testing.T) {
	pinned := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	restore := SetDefault(NewMockClock(pinned))

	if got := Now(); !got.Equal(pinned) {
		t.Errorf("Now() with mock default = %v, expected %v", got, pinned)
	}
	if got := Since(pinned.Add(-time.Minute)); got != time.Minute {
		t.Errorf("Since() with mock default = %v, expected 1m", got)
	}

	restore()
	if _, ok := Default().(RealClock); !ok {
		t.Errorf("restore did not reinstate RealClock, got %T", Default())
	}
}
