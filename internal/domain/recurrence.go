package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"github.com/uptrace/bun"
)

type Recurrence string

const (
	RecurrenceNone      Recurrence = "none"
	RecurrenceDaily     Recurrence = "daily"
	RecurrenceWeekly    Recurrence = "weekly"
	RecurrenceBiweekly  Recurrence = "biweekly"
	RecurrenceTriweekly Recurrence = "triweekly"
	RecurrenceMonthly   Recurrence = "monthly"
)

// MaxProjectionSteps bounds a single projection regardless of window size.
const MaxProjectionSteps = 100

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceTriweekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Recurring is true for every cadence except none.
func (r Recurrence) Recurring() bool {
	return r.Valid() && r != RecurrenceNone
}

// AdvancesOnCompletion lists the cadences whose next occurrence is created when the
// current one completes. Daily series are generated eagerly instead.
func (r Recurrence) AdvancesOnCompletion() bool {
	switch r {
	case RecurrenceWeekly, RecurrenceBiweekly, RecurrenceTriweekly, RecurrenceMonthly:
		return true
	}
	return false
}

func (r Recurrence) option() (rrule.Frequency, int, error) {
	switch r {
	case RecurrenceDaily:
		return rrule.DAILY, 1, nil
	case RecurrenceWeekly:
		return rrule.WEEKLY, 1, nil
	case RecurrenceBiweekly:
		return rrule.WEEKLY, 2, nil
	case RecurrenceTriweekly:
		return rrule.WEEKLY, 3, nil
	case RecurrenceMonthly:
		return rrule.MONTHLY, 1, nil
	}
	return 0, 0, errors.New("unsupported recurrence type")
}

// Project returns the occurrence starts of a series anchored at origin that fall in
// [from, to). The origin is included when in range; wall-clock time of day is kept in
// origin's location. The iterator takes at most MaxProjectionSteps steps, counted
// from the last occurrence before from.
func Project(origin time.Time, recurrence Recurrence, from, to time.Time) ([]time.Time, error) {
	freq, interval, err := recurrence.option()
	if err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  fastForward(origin, recurrence, interval, from),
		Until:    to,
	})
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, 8)
	next := r.Iterator()
	for step := 0; step < MaxProjectionSteps; step++ {
		t, ok := next()
		if !ok || !t.Before(to) {
			break
		}
		if t.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// fastForward moves origin by whole cadence steps to an occurrence before from.
// Monthly series anchored past the 28th keep their origin since later months
// may lack that day.
func fastForward(origin time.Time, recurrence Recurrence, interval int, from time.Time) time.Time {
	if !from.After(origin) {
		return origin
	}
	local := from.In(origin.Location())

	if recurrence == RecurrenceMonthly {
		if origin.Day() > 28 {
			return origin
		}
		months := (local.Year()-origin.Year())*12 + int(local.Month()) - int(origin.Month()) - 1
		if months <= 0 {
			return origin
		}
		return origin.AddDate(0, months, 0)
	}

	step := interval
	if recurrence != RecurrenceDaily {
		step *= 7
	}
	a := time.Date(origin.Year(), origin.Month(), origin.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a).Hours()/24) - 1
	if days < step {
		return origin
	}
	return origin.AddDate(0, 0, days/step*step)
}

// NextOccurrence returns the first occurrence strictly after start.
func NextOccurrence(start time.Time, recurrence Recurrence) (time.Time, error) {
	occs, err := Project(start, recurrence, start.Add(time.Second), start.AddDate(0, 2, 1))
	if err != nil {
		return time.Time{}, err
	}
	if len(occs) == 0 {
		return time.Time{}, errors.New("recurrence produced no next occurrence")
	}
	return occs[0], nil
}

type RecurringRule struct {
	bun.BaseModel `bun:"table:recurring_rules"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	GroupID        uuid.UUID  `bun:"group_id,notnull,type:uuid"`
	ProviderID     string     `bun:"provider_id,notnull"`
	ListingID      string     `bun:"listing_id,notnull"`
	ClientID       string     `bun:"client_id,notnull"`
	RecurrenceType Recurrence `bun:"recurrence_type,notnull"`
	StartDate      time.Time  `bun:"start_date,notnull,type:date"`
	StartTime      Clock      `bun:"start_time,notnull,type:text"`
	EndTime        Clock      `bun:"end_time,notnull,type:text"`
	Timezone       string     `bun:"timezone,notnull"`
	IsActive       bool       `bun:"is_active,notnull"`
	Location       string     `bun:"location"`
	ContactName    string     `bun:"contact_name"`
	ContactEmail   string     `bun:"contact_email"`
	ContactPhone   string     `bun:"contact_phone"`
	CreatedBy      string     `bun:"created_by"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func (r *RecurringRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.GroupID == uuid.Nil {
			r.GroupID = r.ID
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

func (r RecurringRule) Loc() *time.Location {
	return LoadLocation(r.Timezone)
}

// Origin is the first occurrence of the series.
func (r RecurringRule) Origin() time.Time {
	return r.StartTime.On(r.StartDate, r.Loc())
}

func (r RecurringRule) Duration() time.Duration {
	return time.Duration(r.EndTime-r.StartTime) * time.Minute
}

// Occurrences projects the rule's occurrence starts into [from, to).
func (r RecurringRule) Occurrences(from, to time.Time) ([]time.Time, error) {
	if r.EndTime <= r.StartTime {
		return nil, errors.New("invalid duration")
	}
	return Project(r.Origin(), r.RecurrenceType, from, to)
}
