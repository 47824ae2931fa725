package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newSession(id string, start, end time.Time, isCurrent bool) Session {
	return Session{ID: id, Name: NameFall, Year: start.Year(), StartDate: start, EndDate: end, IsCurrent: isCurrent}
}

func TestResolveCurrent(t *testing.T) {
	now := date(2024, 3, 1)
	calendar := newSession("calendar", date(2024, 1, 1), date(2024, 5, 31), false)
	pastFlagged := newSession("past-flagged", date(2023, 9, 1), date(2023, 12, 20), true)
	past := newSession("past", date(2023, 1, 1), date(2023, 5, 31), false)
	future := newSession("future", date(2024, 9, 1), date(2024, 12, 20), false)
	otherFlagged := newSession("other-flagged", date(2022, 9, 1), date(2022, 12, 20), true)

	tests := []struct {
		name     string
		sessions []Session
		wantID   string // empty: nil
	}{
		{name: "empty", sessions: nil},
		{name: "manual override wins over calendar", sessions: []Session{calendar, pastFlagged}, wantID: "past-flagged"},
		{name: "calendar fallback", sessions: []Session{past, calendar, future}, wantID: "calendar"},
		{name: "nothing contains now", sessions: []Session{past, future}},
		{name: "first flagged wins", sessions: []Session{otherFlagged, pastFlagged, calendar}, wantID: "other-flagged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCurrent(tt.sessions, now)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestResolveCurrentBoundaries(t *testing.T) {
	sess := newSession("s", date(2024, 1, 1), date(2024, 1, 11), false)

	assert.NotNil(t, ResolveCurrent([]Session{sess}, sess.StartDate), "start date is inclusive")
	assert.NotNil(t, ResolveCurrent([]Session{sess}, sess.EndDate), "end date is inclusive")
	assert.Nil(t, ResolveCurrent([]Session{sess}, sess.EndDate.Add(time.Second)))
}

func TestResolveNext(t *testing.T) {
	now := date(2024, 3, 1)
	a := newSession("a", date(2024, 9, 1), date(2024, 12, 20), false)
	b := newSession("b", date(2025, 1, 10), date(2025, 5, 31), false)
	c := newSession("c", date(2025, 6, 1), date(2025, 8, 15), false)
	running := newSession("running", date(2024, 1, 1), date(2024, 5, 31), false)

	orders := map[string][]Session{
		"abc": {a, b, c},
		"cba": {c, b, a},
		"bca": {b, c, a},
		"mix": {running, c, a, b},
	}
	for name, sessions := range orders {
		t.Run(name, func(t *testing.T) {
			got := ResolveNext(sessions, now)
			require.NotNil(t, got)
			assert.Equal(t, "a", got.ID)
		})
	}

	t.Run("none upcoming", func(t *testing.T) {
		assert.Nil(t, ResolveNext([]Session{running}, now))
	})
	t.Run("ties keep input order", func(t *testing.T) {
		twin := newSession("twin", a.StartDate, a.EndDate, false)
		got := ResolveNext([]Session{twin, a}, now)
		require.NotNil(t, got)
		assert.Equal(t, "twin", got.ID)
	})
	t.Run("starting now is not next", func(t *testing.T) {
		assert.Nil(t, ResolveNext([]Session{a}, a.StartDate))
	})
}

func TestSessionViews(t *testing.T) {
	sess := Session{Name: NameFall, Year: 2024, StartDate: date(2024, 1, 1), EndDate: date(2024, 1, 11)}

	tests := []struct {
		name         string
		now          time.Time
		wantStatus   Status
		wantProgress int
	}{
		{name: "before", now: date(2023, 12, 31), wantStatus: StatusUpcoming, wantProgress: 0},
		{name: "at start", now: sess.StartDate, wantStatus: StatusCurrent, wantProgress: 0},
		{name: "midpoint", now: date(2024, 1, 6), wantStatus: StatusCurrent, wantProgress: 50},
		{name: "at end", now: sess.EndDate, wantStatus: StatusCurrent, wantProgress: 100},
		{name: "after", now: date(2024, 2, 1), wantStatus: StatusPast, wantProgress: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := sess.View(tt.now)
			assert.Equal(t, "Fall 2024", view.DisplayName)
			assert.Equal(t, tt.wantStatus, view.Status)
			assert.Equal(t, tt.wantProgress, view.Progress)
		})
	}

	assert.Equal(t, 10, sess.Progress(date(2024, 1, 2)))
	assert.Equal(t, 33, sess.Progress(date(2024, 1, 4).Add(8*time.Hour)))
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"fall":     NameFall,
		" SPRING ": NameSpring,
		"Summer":   NameSummer,
		"winter":   NameWinter,
		"Autumn":   "Autumn",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeName(in), in)
	}
	assert.False(t, isValidName("Autumn"))
	assert.True(t, isValidName(NameWinter))
}

func TestFilterByStatus(t *testing.T) {
	now := date(2024, 3, 1)
	sessions := []Session{
		newSession("past", date(2023, 1, 1), date(2023, 5, 31), false),
		newSession("current", date(2024, 1, 1), date(2024, 5, 31), false),
		newSession("upcoming", date(2024, 9, 1), date(2024, 12, 20), false),
	}

	assert.Len(t, filterByStatus(sessions, "", now), 3)
	for _, status := range []Status{StatusPast, StatusCurrent, StatusUpcoming} {
		got := filterByStatus(sessions, status, now)
		require.Len(t, got, 1)
		assert.Equal(t, string(status), got[0].ID)
	}
}
