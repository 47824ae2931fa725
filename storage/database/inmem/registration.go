package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/registration"
)

type registrationRepository struct {
	db *DB
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(db *DB) *registrationRepository {
	return &registrationRepository{db: db}
}

func (repo *registrationRepository) RunInTx(ctx context.Context, fn core.TxFunc) error {
	return repo.db.RunInTx(ctx, fn)
}

func (repo *registrationRepository) CreateRequest(_ context.Context, req registration.Request, _ ...core.DBExecutor) (registration.Request, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	req.ID = uuid.New().String()
	repo.db.registrations[req.ID] = row[registration.Request]{seq: repo.db.nextSeq(), obj: req}
	return req, nil
}

func (repo *registrationRepository) QueryRequests(_ context.Context, filter *registration.QueryFilter, _ ...core.DBExecutor) ([]registration.Request, error) {
	repo.db.mu.RLock()
	all := values(repo.db.registrations)
	repo.db.mu.RUnlock()

	reqs := make([]registration.Request, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- { // most recent first
		req := all[i]
		if filter != nil {
			if filter.Status != "" && req.Status != filter.Status {
				continue
			}
			if filter.Search != "" && !(containsFold(req.Name, filter.Search) || containsFold(req.Email, filter.Search)) {
				continue
			}
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (repo *registrationRepository) GetRequest(_ context.Context, id string, _ ...core.DBExecutor) (registration.Request, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.registrations[id]; ok {
		return r.obj, nil
	}
	return registration.Request{}, registration.ErrNotFound
}

func (repo *registrationRepository) PendingRequestExists(_ context.Context, email string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, r := range repo.db.registrations {
		if r.obj.Email == email && r.obj.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (repo *registrationRepository) UpdateRequest(_ context.Context, req registration.Request, _ ...core.DBExecutor) (registration.Request, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.registrations[req.ID]
	if !ok {
		return registration.Request{}, registration.ErrNotFound
	}
	req.CreatedAt = r.obj.CreatedAt
	r.obj = req
	repo.db.registrations[req.ID] = r
	return req, nil
}
