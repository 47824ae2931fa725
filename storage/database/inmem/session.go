package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
)

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

var sessionOrderings = map[string]compareFunc[session.Session]{
	"name":       func(a, b session.Session) int { return cmpString(a.Name, b.Name) },
	"year":       func(a, b session.Session) int { return cmpInt(a.Year, b.Year) },
	"start_date": func(a, b session.Session) int { return cmpTime(a.StartDate, b.StartDate) },
	"end_date":   func(a, b session.Session) int { return cmpTime(a.EndDate, b.EndDate) },
	"created_at": func(a, b session.Session) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b session.Session) int { return cmpTime(a.UpdatedAt, b.UpdatedAt) },
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess session.Session, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sess.ID = uuid.New().String()
	sess.IsCurrent = false
	repo.db.sessions[sess.ID] = row[session.Session]{seq: repo.db.nextSeq(), obj: sess}
	return sess, nil
}

func (repo *sessionRepository) QuerySessions(_ context.Context, filter *session.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]session.Session, error) {
	repo.db.mu.RLock()
	all := values(repo.db.sessions)
	repo.db.mu.RUnlock()

	sessions := make([]session.Session, 0, len(all))
	for _, sess := range all {
		if filter != nil {
			if filter.Name != "" && sess.Name != filter.Name {
				continue
			}
			if filter.Year != 0 && sess.Year != filter.Year {
				continue
			}
		}
		sessions = append(sessions, sess)
	}
	orderBy(sessions, ordering, sessionOrderings, nil)
	return sessions, nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.sessions[id]; ok {
		return r.obj, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) SessionExists(_ context.Context, name string, year int, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for id, r := range repo.db.sessions {
		if id != excludedID && r.obj.Name == name && r.obj.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (repo *sessionRepository) UpdateSession(_ context.Context, sess session.Session, _ ...core.DBExecutor) (session.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.sessions[sess.ID]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	sess.IsCurrent = r.obj.IsCurrent
	sess.CreatedAt = r.obj.CreatedAt
	r.obj = sess
	repo.db.sessions[sess.ID] = r
	return sess, nil
}

func (repo *sessionRepository) DeleteSession(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.sessions[id]; !ok {
		return session.ErrNotFound
	}
	delete(repo.db.sessions, id)
	for cid, r := range repo.db.courses {
		if r.obj.SessionID == id {
			deleteCourseRows(repo.db, cid)
		}
	}
	return nil
}

func (repo *sessionRepository) MarkCurrent(_ context.Context, currentID string, updatedAt time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for id, r := range repo.db.sessions {
		isTarget := id == currentID
		if r.obj.IsCurrent == isTarget && !isTarget {
			continue
		}
		r.obj.IsCurrent = isTarget
		r.obj.UpdatedAt = updatedAt
		repo.db.sessions[id] = r
		cnt++
	}
	return cnt, nil
}
