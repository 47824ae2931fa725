package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
	eventsvc "github.com/trezcool/scholar/services/events"
	inmemdb "github.com/trezcool/scholar/storage/database/inmem"
	testutil "github.com/trezcool/scholar/tests"
)

type fixture struct {
	repo    session.Repository
	svc     *session.Service
	events  *eventsvc.Recorder
	logger  *testutil.Logger
	advance func(time.Duration)
}

// newFixture freezes the clock on 2024-03-01, within Spring 2024.
func newFixture(t *testing.T) fixture {
	f := fixture{
		repo:   inmemdb.NewSessionRepository(inmemdb.New()),
		events: &eventsvc.Recorder{},
		logger: testutil.NewLogger(),
	}
	f.svc = session.NewService(f.repo, f.events, f.logger)
	f.advance = testutil.FreezeTime(t, &session.NowFunc, testutil.Date(2024, 3, 1))
	return f
}

func dates(start, end time.Time) (*time.Time, *time.Time) {
	return &start, &end
}

func newSession(name string, year int, start, end time.Time) session.NewSession {
	s, e := dates(start, end)
	return session.NewSession{Name: name, Year: year, StartDate: s, EndDate: e}
}

func (f fixture) flagged(t *testing.T) []session.Session {
	t.Helper()
	all, err := f.repo.QuerySessions(context.Background(), nil, nil)
	require.NoError(t, err)
	var flagged []session.Session
	for _, s := range all {
		if s.IsCurrent {
			flagged = append(flagged, s)
		}
	}
	return flagged
}

func (f fixture) assertCurrent(t *testing.T, wantID string) {
	t.Helper()
	flagged := f.flagged(t)
	if wantID == "" {
		assert.Empty(t, flagged)
		return
	}
	require.Len(t, flagged, 1)
	assert.Equal(t, wantID, flagged[0].ID)
}

func TestService_AtMostOneCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	spring, err := f.svc.Create(ctx, newSession("Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31)))
	require.NoError(t, err)
	assert.True(t, spring.IsCurrent, "calendar-current on creation")
	f.assertCurrent(t, spring.ID)

	fallInput := newSession("Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20))
	fallInput.IsCurrent = true
	fall, err := f.svc.Create(ctx, fallInput)
	require.NoError(t, err)
	assert.True(t, fall.IsCurrent)
	f.assertCurrent(t, fall.ID)

	desc := "first term"
	_, err = f.svc.Update(ctx, spring.ID, session.UpdateSession{Description: &desc})
	require.NoError(t, err)
	f.assertCurrent(t, fall.ID) // the manual override sticks

	next, err := f.svc.Create(ctx, newSession("spring", 2025, testutil.Date(2025, 1, 6), testutil.Date(2025, 5, 30)))
	require.NoError(t, err)
	assert.Equal(t, session.NameSpring, next.Name)
	f.assertCurrent(t, fall.ID)

	require.NoError(t, f.svc.Delete(ctx, fall.ID))
	f.assertCurrent(t, spring.ID) // back to the calendar

	_, err = f.svc.SetCurrent(ctx, next.ID)
	require.NoError(t, err)
	f.assertCurrent(t, next.ID)

	no := false
	_, err = f.svc.Update(ctx, next.ID, session.UpdateSession{IsCurrent: &no})
	require.NoError(t, err)
	f.assertCurrent(t, spring.ID)

	f.advance(365 * 24 * time.Hour) // 2025-03-01
	cur, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, spring.ID, cur.ID, "reconcile keeps the flagged session")

	require.NoError(t, f.svc.Delete(ctx, spring.ID))
	f.assertCurrent(t, next.ID)
}

func TestService_CurrentChangedEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	spring, err := f.svc.Create(ctx, newSession("Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31)))
	require.NoError(t, err)
	fall, err := f.svc.Create(ctx, newSession("Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20)))
	require.NoError(t, err)
	_, err = f.svc.SetCurrent(ctx, fall.ID)
	require.NoError(t, err)
	_, err = f.svc.SetCurrent(ctx, fall.ID) // no change
	require.NoError(t, err)

	events := f.events.Events(core.SubjectSessionCurrentChanged)
	require.Len(t, events, 2)
	first := events[0].Payload.(session.CurrentChanged)
	assert.Equal(t, "", first.PreviousID)
	assert.Equal(t, spring.ID, first.CurrentID)
	second := events[1].Payload.(session.CurrentChanged)
	assert.Equal(t, spring.ID, second.PreviousID)
	assert.Equal(t, fall.ID, second.CurrentID)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	start, end := testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20)

	tests := []struct {
		name    string
		input   session.NewSession
		wantMsg string
	}{
		{name: "no name", input: newSession("  ", 2024, start, end), wantMsg: "name required"},
		{name: "unknown name", input: newSession("Autumn", 2024, start, end), wantMsg: "invalid session name"},
		{name: "no year", input: newSession("Fall", 0, start, end), wantMsg: "year required"},
		{name: "no dates", input: session.NewSession{Name: "Fall", Year: 2024}, wantMsg: "dates required"},
		{name: "no end date", input: session.NewSession{Name: "Fall", Year: 2024, StartDate: &start}, wantMsg: "dates required"},
		{name: "end before start", input: newSession("Fall", 2024, end, start), wantMsg: "start must precede end"},
		{name: "same start and end", input: newSession("Fall", 2024, start, start), wantMsg: "start must precede end"},
		{name: "name checked before year", input: newSession("", 0, start, end), wantMsg: "name required"},
		{name: "year checked before the known names", input: session.NewSession{Name: "Foo"}, wantMsg: "year required"},
		{name: "dates checked before the known names", input: session.NewSession{Name: "Foo", Year: 2024}, wantMsg: "dates required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, core.IsArgumentError(err))
			assert.Equal(t, tt.wantMsg, err.Error())

			all, err := f.repo.QuerySessions(ctx, nil, nil)
			require.NoError(t, err)
			assert.Empty(t, all, "nothing persisted")
		})
	}
}

func TestService_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	input := newSession("Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20))
	_, err := f.svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, input)
	require.Error(t, err)
	assert.True(t, core.IsConflictError(err))
	assert.Equal(t, "session already exists", err.Error())

	input.Name = "FALL"
	_, err = f.svc.Create(ctx, input)
	assert.True(t, core.IsConflictError(err), "names are normalized")

	input.Year = 2025
	_, err = f.svc.Create(ctx, input)
	assert.NoError(t, err)
}

func TestService_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	regDeadline := testutil.Date(2024, 1, 15)
	input := newSession("Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31))
	input.Description = "original"
	input.RegistrationDeadline = &regDeadline
	orig, err := f.svc.Create(ctx, input)
	require.NoError(t, err)
	require.True(t, orig.IsCurrent)

	f.advance(time.Hour)
	desc := "x"
	got, err := f.svc.Update(ctx, orig.ID, session.UpdateSession{Description: &desc})
	require.NoError(t, err)

	assert.Equal(t, "x", got.Description)
	assert.True(t, got.UpdatedAt.After(orig.UpdatedAt))

	want := orig
	want.Description = got.Description
	want.UpdatedAt = got.UpdatedAt
	assert.Equal(t, want, got)
}

func TestService_UpdateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	spring, err := f.svc.Create(ctx, newSession("Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31)))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, newSession("Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20)))
	require.NoError(t, err)

	fall := "fall"
	_, err = f.svc.Update(ctx, spring.ID, session.UpdateSession{Name: &fall})
	assert.True(t, core.IsConflictError(err))

	late := testutil.Date(2024, 6, 30)
	_, err = f.svc.Update(ctx, spring.ID, session.UpdateSession{StartDate: &late})
	assert.True(t, core.IsArgumentError(err))
	assert.Equal(t, "start must precede end", err.Error())

	zero := 0
	_, err = f.svc.Update(ctx, spring.ID, session.UpdateSession{Year: &zero})
	assert.True(t, core.IsArgumentError(err))

	_, err = f.svc.Update(ctx, "missing", session.UpdateSession{})
	assert.True(t, core.IsNotFound(err))

	got, err := f.svc.GetByID(ctx, spring.ID)
	require.NoError(t, err)
	assert.Equal(t, spring.StartDate, got.StartDate, "rejected updates persist nothing")
	assert.Equal(t, spring.Name, got.Name)
}

func TestService_UpdateIsCurrentRedirects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	fall, err := f.svc.Create(ctx, newSession("Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20)))
	require.NoError(t, err)
	require.False(t, fall.IsCurrent)

	yes := true
	desc := "dropped"
	got, err := f.svc.Update(ctx, fall.ID, session.UpdateSession{IsCurrent: &yes, Description: &desc})
	require.NoError(t, err)
	assert.True(t, got.IsCurrent)
	assert.Empty(t, got.Description, "other fields are ignored")
	f.assertCurrent(t, fall.ID)
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.SetCurrent(ctx, "missing")
	assert.True(t, core.IsNotFound(err))

	err = f.svc.Delete(ctx, "missing")
	assert.True(t, core.IsNotFound(err))

	_, err = f.svc.GetByID(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestService_GetCurrentAndNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cur, err := f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	// stored directly: no reconciliation, so GetCurrent falls back to the calendar
	spring := testutil.CreateSession(t, f.repo, "Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31))
	fall := testutil.CreateSession(t, f.repo, "Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20))
	testutil.CreateSession(t, f.repo, "Spring", 2025, testutil.Date(2025, 1, 6), testutil.Date(2025, 5, 30))

	cur, err = f.svc.GetCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, spring.ID, cur.ID)

	next, err := f.svc.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, fall.ID, next.ID)
}

func TestService_QueryAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s23 := testutil.CreateSession(t, f.repo, "Fall", 2023, testutil.Date(2023, 9, 4), testutil.Date(2023, 12, 20))
	s25 := testutil.CreateSession(t, f.repo, "Spring", 2025, testutil.Date(2025, 1, 6), testutil.Date(2025, 5, 30))
	s24 := testutil.CreateSession(t, f.repo, "Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31))

	tests := []struct {
		name     string
		filter   *session.QueryFilter
		ordering []core.DBOrdering
		wantIDs  []string
	}{
		{name: "most recent first", wantIDs: []string{s25.ID, s24.ID, s23.ID}},
		{name: "oldest first", ordering: []core.DBOrdering{{Field: "start_date", Ascending: true}}, wantIDs: []string{s23.ID, s24.ID, s25.ID}},
		{name: "by name", filter: &session.QueryFilter{Name: "Spring"}, wantIDs: []string{s25.ID, s24.ID}},
		{name: "by year", filter: &session.QueryFilter{Year: 2023}, wantIDs: []string{s23.ID}},
		{name: "upcoming", filter: &session.QueryFilter{Status: session.StatusUpcoming}, wantIDs: []string{s25.ID}},
		{name: "current", filter: &session.QueryFilter{Status: session.StatusCurrent}, wantIDs: []string{s24.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.QueryAll(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

// doubleFlagged simulates a store written behind the service's back, with two sessions flagged current.
type doubleFlagged struct {
	session.Repository
	extraID string
}

func (r doubleFlagged) QuerySessions(ctx context.Context, filter *session.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]session.Session, error) {
	sessions, err := r.Repository.QuerySessions(ctx, filter, ordering, exec...)
	for i := range sessions {
		if sessions[i].ID == r.extraID {
			sessions[i].IsCurrent = true
		}
	}
	return sessions, err
}

func TestService_ReconcileWarnsOnSeveralFlagged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	spring := testutil.CreateSession(t, f.repo, "Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31))
	fall := testutil.CreateSession(t, f.repo, "Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20))
	_, err := f.repo.MarkCurrent(ctx, fall.ID, time.Now())
	require.NoError(t, err)

	svc := session.NewService(&doubleFlagged{Repository: f.repo, extraID: spring.ID}, f.events, f.logger)
	cur, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, spring.ID, cur.ID, "first flagged in store order wins")
	assert.Len(t, f.logger.Entries("WARN"), 1)
	f.assertCurrent(t, spring.ID)
}
