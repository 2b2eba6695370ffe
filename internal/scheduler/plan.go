package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/robfig/cron/v3"
)

// maxCronOccurrences caps how many entries a single cron line can expand to.
// A line that would exceed it is rejected rather than truncated.
const maxCronOccurrences = 10000

// ExpandPlan turns configured plan items into absolute entries, once, from
// the window start. Entries outside the window are returned separately and
// are not an error. Malformed items are.
func ExpandPlan(w domain.RunWindow, items []domain.PlanItem) (kept, dropped []domain.ScheduleEntry, err error) {
	for i, item := range items {
		switch {
		case item.AtHour != nil && item.Cron != "":
			return nil, nil, fmt.Errorf("%w: item %d sets both at_hour and cron", domain.ErrInvalidPlan, i)

		case item.AtHour != nil:
			e := planEntry(w, *item.AtHour, item.Payload)
			if w.Contains(e.FireAt) {
				kept = append(kept, e)
			} else {
				dropped = append(dropped, e)
			}

		case item.Cron != "":
			occurrences, err := cronOccurrences(w, item.Cron)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: item %d: %w", domain.ErrInvalidPlan, i, err)
			}
			for _, at := range occurrences {
				kept = append(kept, planEntry(w, at.Sub(w.Start).Hours(), item.Payload))
			}

		default:
			return nil, nil, fmt.Errorf("%w: item %d needs at_hour or cron", domain.ErrInvalidPlan, i)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].FireAt.Before(kept[j].FireAt) })
	return kept, dropped, nil
}

func planEntry(w domain.RunWindow, h float64, p domain.SymptomPayload) domain.ScheduleEntry {
	offset := h
	payload := domain.SymptomPayload{
		Symptoms:   append([]string(nil), p.Symptoms...),
		OtherText:  p.OtherText,
		Activities: append([]string(nil), p.Activities...),
	}
	return domain.ScheduleEntry{
		Kind:        domain.EntryPlan,
		FireAt:      w.At(h),
		OffsetHours: &offset,
		Payload:     &payload,
	}
}

// cronOccurrences lists every activation of expr inside the window, in the
// window start's location unless expr carries a CRON_TZ prefix.
func cronOccurrences(w domain.RunWindow, expr string) ([]time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}

	var out []time.Time
	for t := sched.Next(w.Start); !t.IsZero() && !t.After(w.End); t = sched.Next(t) {
		if len(out) == maxCronOccurrences {
			return nil, fmt.Errorf("cron %q fires more than %d times inside the run window", expr, maxCronOccurrences)
		}
		out = append(out, t)
	}
	return out, nil
}

// intervalEntry returns step k of an interval run, anchored at the window
// start. ok is false once the step reaches the window end.
func intervalEntry(w domain.RunWindow, every time.Duration, k int) (e domain.ScheduleEntry, ok bool) {
	at := w.Start.Add(time.Duration(k) * every)
	if !at.Before(w.End) {
		return domain.ScheduleEntry{Kind: domain.EntryInterval, FireAt: at}, false
	}
	idx := k
	return domain.ScheduleEntry{Kind: domain.EntryInterval, FireAt: at, Index: &idx}, true
}
