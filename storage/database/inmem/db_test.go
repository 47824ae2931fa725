package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/user"
)

func TestDB_RunInTx(t *testing.T) {
	ctx := context.Background()
	db := New()
	users, sessions := NewUserRepository(db), NewSessionRepository(db)
	spring := newTestSession(t, sessions, "Spring", 2024, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))

	errBoom := errors.New("boom")
	tests := []struct {
		name      string
		fail      bool
		wantUsers int
		wantErr   error
	}{
		{name: "rolled back", fail: true, wantUsers: 0, wantErr: errBoom},
		{name: "committed", wantUsers: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.RunInTx(ctx, func(tx core.DBExecutor) error {
				if _, err := users.CreateUser(ctx, user.User{Name: "Ada", Email: "ada@test.cd"}, tx); err != nil {
					return err
				}
				if err := sessions.DeleteSession(ctx, spring.ID, tx); err != nil {
					return err
				}
				if tt.fail {
					return errBoom
				}
				return nil
			})
			assert.Equal(t, tt.wantErr, err)

			all, err := users.QueryUsers(ctx, nil, nil)
			require.NoError(t, err)
			assert.Len(t, all, tt.wantUsers)

			_, err = sessions.GetSession(ctx, spring.ID)
			if tt.fail {
				assert.NoError(t, err, "the deleted session is back")
			} else {
				assert.True(t, core.IsNotFound(err))
			}
		})
	}
}
