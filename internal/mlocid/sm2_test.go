package mlocid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/mlocid-e2e/internal/errs"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestReview_FirstPassesFollowOneSixThenEFactor(t *testing.T) {
	s := NewSchedule(epoch)
	require.Equal(t, epoch, s.NextReview)

	s, err := Review(s, 4, epoch)
	require.NoError(t, err)
	require.Equal(t, 1, s.Interval)
	require.Equal(t, 1, s.Repetitions)
	require.Equal(t, epoch.AddDate(0, 0, 1), s.NextReview)

	s, err = Review(s, 4, epoch)
	require.NoError(t, err)
	require.Equal(t, 6, s.Interval)
	require.Equal(t, 2, s.Repetitions)

	// Grade 4 leaves the E-Factor at 2.5, so the third interval is 15.
	s, err = Review(s, 4, epoch)
	require.NoError(t, err)
	require.InDelta(t, 2.5, s.EFactor, 1e-9)
	require.Equal(t, 15, s.Interval)
}

func TestReview_FailingGradeRestarts(t *testing.T) {
	s := Schedule{EFactor: 2.5, Interval: 15, Repetitions: 3, NextReview: epoch}
	s, err := Review(s, 2, epoch)
	require.NoError(t, err)
	require.Equal(t, 0, s.Repetitions)
	require.Equal(t, 1, s.Interval)
	require.InDelta(t, 2.18, s.EFactor, 1e-9)
}

func TestReview_RejectsOutOfRangeQuality(t *testing.T) {
	for _, q := range []int{-1, 6, 100} {
		_, err := Review(NewSchedule(epoch), q, epoch)
		require.Error(t, err)
		require.True(t, errs.Is(err, errs.InvalidArgument), "quality %d", q)
	}
}

func testReview_InvariantsHold(t *rapid.T) {
	s := NewSchedule(epoch)
	now := epoch
	grades := rapid.SliceOfN(rapid.IntRange(MinQuality, MaxQuality), 1, 30).Draw(t, "grades")
	for _, q := range grades {
		next, err := Review(s, q, now)
		if err != nil {
			t.Fatalf("Review(%d): %v", q, err)
		}
		if next.EFactor < MinEFactor {
			t.Fatalf("EFactor %v dropped below %v", next.EFactor, MinEFactor)
		}
		if next.Interval < 1 {
			t.Fatalf("interval %d below one day", next.Interval)
		}
		if !next.NextReview.After(now) {
			t.Fatalf("next review %v not after %v", next.NextReview, now)
		}
		if q < 3 && next.Repetitions != 0 {
			t.Fatalf("grade %d kept repetitions at %d", q, next.Repetitions)
		}
		if q >= 3 && next.Repetitions != s.Repetitions+1 {
			t.Fatalf("grade %d moved repetitions %d -> %d", q, s.Repetitions, next.Repetitions)
		}
		s, now = next, next.NextReview
	}
}

func TestReview_InvariantsHold(t *testing.T) {
	rapid.Check(t, testReview_InvariantsHold)
}
