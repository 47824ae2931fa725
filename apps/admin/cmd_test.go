package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	eventsvc "github.com/trezcool/scholar/services/events"
	inmemdb "github.com/trezcool/scholar/storage/database/inmem"
	testutil "github.com/trezcool/scholar/tests"
)

type testCLI struct {
	*commandLine
	buf         *bytes.Buffer
	sessionRepo session.Repository
}

func setup(t *testing.T) *testCLI {
	t.Helper()
	db := inmemdb.New()
	sessionRepo := inmemdb.NewSessionRepository(db)
	buf := new(bytes.Buffer)

	cli := newCommandLine(nil, inmemdb.NewUserRepository(db), session.NewService(sessionRepo, &eventsvc.Recorder{}, testutil.NewLogger()))
	cli.out = buf
	return &testCLI{commandLine: cli, buf: buf, sessionRepo: sessionRepo}
}

func (cli *testCLI) exec(args ...string) error {
	cli.buf.Reset()
	return cli.run(context.Background(), append([]string{"admin"}, args...))
}

func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *testCLI, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.exec(tt.args...)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(_ context.Context, _ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	t.Run("username or email required", func(t *testing.T) {
		mockPassword(t, "Adm!n1234")
		assert.Equal(t, errHelp, cli.exec("adduser"))
	})

	t.Run("password required", func(t *testing.T) {
		mockPassword(t, "")
		assert.Equal(t, errHelp, cli.exec("adduser", "-u", "boss"))
	})

	t.Run("create admin", func(t *testing.T) {
		mockPassword(t, "Adm!n1234")
		require.NoError(t, cli.exec("adduser", "-n", "The Boss", "-u", "Boss", "-e", "boss@test.cd", "--admin"))
		assert.Contains(t, cli.buf.String(), "user The Boss saved")

		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "boss"})
		require.NoError(t, err)
		assert.Equal(t, user.AllRoles, usr.Roles)
		assert.True(t, usr.Active())
		assert.NoError(t, usr.CheckPassword("Adm!n1234"))
	})

	t.Run("update existing", func(t *testing.T) {
		mockPassword(t, "N3w!Pass")
		require.NoError(t, cli.exec("adduser", "-e", "boss@test.cd"))

		users, err := cli.usrRepo.QueryUsers(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "The Boss", users[0].Name)
		assert.NoError(t, users[0].CheckPassword("N3w!Pass"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []struct {
		cliTest
		pwd string
	}{
		{cliTest: cliTest{name: "no command"}},
		{cliTest: cliTest{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`}},
		{cliTest: cliTest{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "username but no password", args: []string{"resetpassword", "-u", "lol"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "user not found", args: []string{"resetpassword", "-u", "lol"}, wantErr: user.ErrNotFound}, pwd: "lol"},
		{cliTest: cliTest{name: "reset with username", args: []string{"resetpassword", "-u", usr.Username}}, pwd: "lol"},
		{cliTest: cliTest{name: "reset with email", args: []string{"resetpassword", "--username", "AWE@test.cd"}}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.exec(tt.args...)
			if tt.wantErr != nil || tt.wantErrStr != "" {
				if tt.wantErr != nil {
					assert.Equal(t, tt.wantErr, err)
				} else if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
				return
			}
			require.NoError(t, err)
			if tt.pwd == "" {
				return
			}
			refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_sessions(t *testing.T) {
	cli := setup(t)
	testutil.FreezeTime(t, &session.NowFunc, time.Date(2024, time.October, 1, 8, 0, 0, 0, time.UTC))

	file := filepath.Join(t.TempDir(), "sessions.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`sessions:
  - name: spring
    year: 2024
    start_date: 2024-01-15T00:00:00Z
    end_date: 2024-05-15T00:00:00Z
  - name: Fall
    year: 2024
    start_date: 2024-09-01T00:00:00Z
    end_date: 2024-12-20T00:00:00Z
    description: First term
`), 0o600))

	t.Run("import requires a file", func(t *testing.T) {
		assert.Equal(t, errHelp, cli.exec("sessions", "import"))
	})

	t.Run("import", func(t *testing.T) {
		require.NoError(t, cli.exec("sessions", "import", "-f", file))
		assert.Contains(t, cli.buf.String(), "2 created, 0 skipped")

		require.NoError(t, cli.exec("sessions", "import", "-f", file))
		assert.Contains(t, cli.buf.String(), "skipped spring 2024: already exists")
		assert.Contains(t, cli.buf.String(), "0 created, 2 skipped")
	})

	t.Run("invalid file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("sessions:\n  - nme: Fall\n"), 0o600))
		assert.Error(t, cli.exec("sessions", "import", "-f", bad))
	})

	sessions, err := cli.sessionRepo.QuerySessions(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	spring, fall := sessions[0], sessions[1]

	t.Run("list", func(t *testing.T) {
		require.NoError(t, cli.exec("sessions", "list"))
		out := cli.buf.String()
		assert.Contains(t, out, "Fall 2024")
		assert.Contains(t, out, "2024-01-15")
		assert.Regexp(t, fall.ID+`\s+Fall 2024\s+2024-09-01\s+2024-12-20\s+current\s+\*`, out)
	})

	t.Run("set current", func(t *testing.T) {
		require.NoError(t, cli.exec("sessions", "set-current", spring.ID))
		assert.Equal(t, fmt.Sprintf("current session: Spring 2024 (%s)\n", spring.ID), cli.buf.String())

		assert.Error(t, cli.exec("sessions", "set-current"))
		err := cli.exec("sessions", "set-current", "nope")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("reconcile", func(t *testing.T) {
		require.NoError(t, cli.exec("sessions", "reconcile"))
		assert.Contains(t, cli.buf.String(), "Spring 2024", "the manual flag wins")
	})
}
