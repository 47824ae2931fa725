package session

import (
	"sort"
	"time"
)

// ResolveCurrent returns the current session: the first one flagged IsCurrent,
// else the first whose date range contains `now`, else nil.
func ResolveCurrent(sessions []Session, now time.Time) *Session {
	for i := range sessions {
		if sessions[i].IsCurrent {
			s := sessions[i]
			return &s
		}
	}
	for i := range sessions {
		if sessions[i].Contains(now) {
			s := sessions[i]
			return &s
		}
	}
	return nil
}

// ResolveNext returns the session with the earliest StartDate after `now`, or nil.
// Ties keep the input order.
func ResolveNext(sessions []Session, now time.Time) *Session {
	upcoming := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.StartDate.After(now) {
			upcoming = append(upcoming, s)
		}
	}
	if len(upcoming) == 0 {
		return nil
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].StartDate.Before(upcoming[j].StartDate) })
	return &upcoming[0]
}

func flaggedIDs(sessions []Session) []string {
	var ids []string
	for _, s := range sessions {
		if s.IsCurrent {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func filterByStatus(sessions []Session, status Status, now time.Time) []Session {
	if status == "" {
		return sessions
	}
	filtered := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Status(now) == status {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
