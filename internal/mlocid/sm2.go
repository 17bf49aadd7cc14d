package mlocid

import (
	"fmt"
	"math"
	"time"

	"github.com/kuitang/mlocid-e2e/internal/errs"
)

// SuperMemo-2 constants.
const (
	InitialEFactor = 2.5
	MinEFactor     = 1.3
	MinQuality     = 0
	MaxQuality     = 5
	passingQuality = 3
)

// Schedule is the SM-2 review state of one card.
type Schedule struct {
	EFactor     float64
	Interval    int // days
	Repetitions int
	NextReview  time.Time
}

// NewSchedule is the state of a card that has never been reviewed; it is due at now.
func NewSchedule(now time.Time) Schedule {
	return Schedule{EFactor: InitialEFactor, NextReview: now}
}

// Review applies one graded recall to s. Grades below 3 restart the
// repetition sequence; the E-Factor is adjusted on every review and never
// drops below 1.3.
func Review(s Schedule, quality int, now time.Time) (Schedule, error) {
	if quality < MinQuality || quality > MaxQuality {
		return s, errs.New(errs.InvalidArgument, fmt.Sprintf("quality must be between %d and %d", MinQuality, MaxQuality))
	}
	if s.EFactor < MinEFactor {
		s.EFactor = MinEFactor
	}

	if quality < passingQuality {
		s.Repetitions = 0
		s.Interval = 1
	} else {
		switch s.Repetitions {
		case 0:
			s.Interval = 1
		case 1:
			s.Interval = 6
		default:
			s.Interval = int(math.Round(float64(s.Interval) * s.EFactor))
		}
		s.Repetitions++
	}
	if s.Interval < 1 {
		s.Interval = 1
	}

	miss := float64(MaxQuality - quality)
	s.EFactor += 0.1 - miss*(0.08+miss*0.02)
	if s.EFactor < MinEFactor {
		s.EFactor = MinEFactor
	}

	s.NextReview = now.AddDate(0, 0, s.Interval)
	return s, nil
}
