package reconcile

import (
	"sort"
	"time"

	"github.com/Codeur974/sentiers-974-sub000/internal/activity"
)

func poiPhotoItem(p activity.PointOfInterest) activity.PhotoItem {
	return activity.PhotoItem{
		ID:        p.ID,
		URI:       p.PhotoURI,
		URL:       p.PhotoURL,
		Title:     p.Title,
		Note:      p.Note,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		SessionID: p.SessionID,
		TakenAt:   int64(p.CreatedAt),
		Origin:    p.Origin,
	}
}

func sessionPhotoItem(sess activity.Session, ph activity.Photo, now time.Time, loc *time.Location) activity.PhotoItem {
	taken := ph.TakenAt
	if taken == 0 {
		taken = sess.CreatedAt
	}
	return activity.PhotoItem{
		ID:        ph.ID,
		URI:       ph.URI,
		URL:       ph.URL,
		SessionID: sess.ID,
		TakenAt:   NormalizeMillis(int64(taken), now, loc),
		Origin:    activity.OriginRemote,
	}
}

// dedupePhotos keeps exactly one item per identity (id, falling back to
// uri). The first occurrence wins; later duplicates only fill in a missing
// URL or URI so a local capture gains its server URL once synced.
func dedupePhotos(items []activity.PhotoItem) []activity.PhotoItem {
	seen := map[string]int{}
	out := make([]activity.PhotoItem, 0, len(items))
	for _, it := range items {
		key := it.Identity()
		if key == "" {
			out = append(out, it)
			continue
		}
		if idx, ok := seen[key]; ok {
			if out[idx].URL == "" {
				out[idx].URL = it.URL
			}
			if out[idx].URI == "" {
				out[idx].URI = it.URI
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, it)
	}
	return out
}

// buildDayGroups buckets photo items by local calendar day and partitions
// each day into session groups (sessions named by the day's performance
// aggregate or seen in remote payloads) versus orphan photos.
func buildDayGroups(items []activity.PhotoItem, sessionsFor func(date string) []activity.SessionPerformance, extraDates []string, loc *time.Location) []activity.DayGroup {
	byDay := map[string][]activity.PhotoItem{}
	for _, it := range items {
		date := DayKey(it.TakenAt, loc)
		byDay[date] = append(byDay[date], it)
	}
	for _, d := range extraDates {
		if _, ok := byDay[d]; !ok {
			byDay[d] = nil
		}
	}

	groups := make([]activity.DayGroup, 0, len(byDay))
	for date, photos := range byDay {
		day := activity.DayGroup{Date: date}

		index := map[string]int{}
		for _, perf := range sessionsFor(date) {
			perf := perf
			index[perf.SessionID] = len(day.SessionGroups)
			day.SessionGroups = append(day.SessionGroups, activity.SessionGroup{
				SessionID:   perf.SessionID,
				Performance: &perf,
			})
		}

		for _, ph := range photos {
			if idx, ok := index[ph.SessionID]; ok {
				day.SessionGroups[idx].Photos = append(day.SessionGroups[idx].Photos, ph)
			} else {
				day.OrphanPhotos = append(day.OrphanPhotos, ph)
			}
		}
		groups = append(groups, day)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
	return groups
}
