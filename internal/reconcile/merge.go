package reconcile

import (
	"sort"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

// richerWins reports whether the remote view replaces the local one for a
// day. The rule is asymmetric on purpose: a photo captured seconds ago
// that has not reached the server yet must survive a remote view that is
// temporarily behind.
//
// Known anomaly kept for compatibility: the session clause can retain a
// remote day with more sessions but no more photos than local when photo
// counts tie.
func richerWins(local, remote activity.DayGroup) bool {
	if local.Sessions() == 0 && local.Photos() == 0 {
		return true
	}
	if remote.Photos() > local.Photos() {
		return true
	}
	if remote.Assigned() > local.Assigned() {
		return true
	}
	if remote.Sessions() > local.Sessions() && remote.Photos() >= local.Photos() {
		return true
	}
	return false
}

// mergeDays resolves the local and remote day sets into one feed. Days
// present only locally never vanish; empty days and days before the
// sanity floor are dropped.
func mergeDays(local, remote []activity.DayGroup) []activity.DayGroup {
	localByDate := map[string]activity.DayGroup{}
	for _, d := range local {
		localByDate[d.Date] = d
	}

	out := make([]activity.DayGroup, 0, len(remote)+len(local))
	remoteDates := map[string]bool{}
	for _, r := range remote {
		remoteDates[r.Date] = true
		if l, ok := localByDate[r.Date]; ok && !richerWins(l, r) {
			out = append(out, l)
		} else {
			out = append(out, r)
		}
	}

	for _, l := range local {
		if remoteDates[l.Date] {
			continue
		}
		if l.Sessions() >= 1 || l.Photos() >= 1 {
			out = append(out, l)
		}
	}

	filtered := out[:0]
	for _, d := range out {
		if d.Sessions() == 0 && d.Photos() == 0 {
			continue
		}
		if dayYear(d.Date) < sanityFloorYear {
			continue
		}
		filtered = append(filtered, d)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Date > filtered[j].Date })
	return filtered
}
