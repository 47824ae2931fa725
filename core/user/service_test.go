package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/user"
	emailsvc "github.com/trezcool/scholar/services/email"
	inmemdb "github.com/trezcool/scholar/storage/database/inmem"
	testutil "github.com/trezcool/scholar/tests"
)

func TestService_timestamps(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	advance := testutil.FreezeTime(t, &user.NowFunc, created)

	conf := core.NewTestConfig()
	svc := user.NewServiceMock(inmemdb.NewUserRepository(inmemdb.New()), emailsvc.NewConsoleServiceMock(testutil.NewLogger(), conf))

	usr, err := svc.Create(ctx, user.NewUser{Name: "Hero", Username: "hero_01", Email: "hero_01@test.cd", Roles: []string{user.RoleStudent}})
	require.NoError(t, err)
	assert.Equal(t, created, usr.CreatedAt)
	assert.Equal(t, created, usr.UpdatedAt)
	assert.True(t, usr.LastLogin.IsZero())

	advance(time.Hour)
	usr, err = svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, created.Add(time.Hour), usr.LastLogin)

	advance(time.Hour)
	usr, err = svc.Update(ctx, usr.ID, user.UpdateUser{Name: "Hero Two", Username: usr.Username, Email: usr.Email})
	require.NoError(t, err)
	assert.Equal(t, created, usr.CreatedAt)
	assert.Equal(t, created.Add(2*time.Hour), usr.UpdatedAt)
}
