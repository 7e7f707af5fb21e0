/*
availability.go - Bookable slot generation for a professional

PURPOSE:
  Turns a weekly working-hours template into concrete start times within a
  date range, then removes every candidate that collides with an existing
  booking.

ALGORITHM:
  1. Group the template by weekday; merge windows that overlap so the same
     minute is never offered twice.
  2. Walk the range one calendar day at a time (local midnight of the
     range start's location).
  3. For each window of that weekday, step from the window start by the
     consultation duration while start + duration <= window end. A slot
     ending exactly at closing time is kept.
  4. Drop candidates outside [rangeStart, rangeEnd) and candidates whose
     [start, start+duration) intersects a blocking appointment.
  5. Sort ascending.

EXAMPLE:
  Rule Monday 09:00-12:00, 60 min, no bookings  -> 09:00, 10:00, 11:00
  Same, plus booking 10:00-11:00               -> 09:00, 11:00

PURITY:
  No I/O, no shared state. Safe to call concurrently.
*/
package scheduling

import (
	"sort"
	"time"

	"github.com/ministerio/gestao-engine/generic"
)

type window struct {
	start generic.TimeOfDay
	end   generic.TimeOfDay
}

type interval struct {
	start time.Time
	end   time.Time
}

// ComputeAvailableSlots returns the bookable start times of p in
// [rangeStart, rangeEnd). Appointments belonging to other professionals and
// appointments that no longer block (canceled, rescheduled) are ignored.
func ComputeAvailableSlots(p Professional, rangeStart, rangeEnd time.Time, existing []Appointment) []time.Time {
	slots := make([]time.Time, 0)
	if p.ConsultationDurationMinutes <= 0 || !rangeStart.Before(rangeEnd) {
		return slots
	}

	duration := p.ConsultationDuration()
	windows := windowsByWeekday(p.WorkingHours)
	busy := blockingIntervals(p, existing)

	for day := generic.StartOfDay(rangeStart); day.Before(rangeEnd); day = generic.AddDays(day, 1) {
		for _, w := range windows[day.Weekday()] {
			closing := w.end.On(day)
			for start := w.start.On(day); !start.Add(duration).After(closing); start = start.Add(duration) {
				if start.Before(rangeStart) || !start.Before(rangeEnd) {
					continue
				}
				if overlapsAny(start, start.Add(duration), busy) {
					continue
				}
				slots = append(slots, start)
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// IsSlotAvailable reports whether start is one of the generated slots.
func IsSlotAvailable(p Professional, start time.Time, existing []Appointment) bool {
	day := generic.StartOfDay(start)
	for _, s := range ComputeAvailableSlots(p, day, generic.AddDays(day, 1), existing) {
		if s.Equal(start) {
			return true
		}
	}
	return false
}

// windowsByWeekday groups valid rules per weekday and merges overlapping
// windows. Touching windows (09:00-10:00, 10:00-11:00) stay separate.
func windowsByWeekday(rules []WorkingHoursRule) map[time.Weekday][]window {
	grouped := make(map[time.Weekday][]window)
	for _, r := range rules {
		if !r.Valid() {
			continue
		}
		grouped[r.Weekday] = append(grouped[r.Weekday], window{start: r.Start, end: r.End})
	}

	for wd, ws := range grouped {
		sort.Slice(ws, func(i, j int) bool { return ws[i].start < ws[j].start })
		merged := ws[:1]
		for _, w := range ws[1:] {
			last := &merged[len(merged)-1]
			if w.start < last.end {
				if w.end > last.end {
					last.end = w.end
				}
				continue
			}
			merged = append(merged, w)
		}
		grouped[wd] = merged
	}
	return grouped
}

func blockingIntervals(p Professional, appointments []Appointment) []interval {
	busy := make([]interval, 0, len(appointments))
	for _, a := range appointments {
		if a.ProfessionalID != "" && p.ID != "" && a.ProfessionalID != p.ID {
			continue
		}
		if !a.Status.BlocksSlot() {
			continue
		}
		end := a.End
		if !end.After(a.Start) {
			end = a.Start.Add(p.ConsultationDuration())
		}
		busy = append(busy, interval{start: a.Start, end: end})
	}
	return busy
}

func overlapsAny(start, end time.Time, busy []interval) bool {
	for _, b := range busy {
		if generic.Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}
