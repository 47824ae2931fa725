package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/scholar/apps/api/echo"
	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/registration"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	emailsvc "github.com/trezcool/scholar/services/email"
	eventsvc "github.com/trezcool/scholar/services/events"
	exportsvc "github.com/trezcool/scholar/services/exports"
	inmemdb "github.com/trezcool/scholar/storage/database/inmem"
	testutil "github.com/trezcool/scholar/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server      *echoapi.Server
	conf        *core.Config
	logger      *testutil.Logger
	usrRepo     user.Repository
	usrSvc      *user.Service
	sessionRepo session.Repository
	mailSvc     *emailsvc.ConsoleServiceMock
	events      *eventsvc.Recorder
	files       *exportsvc.MemoryStore
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	db := inmemdb.New()

	app := &testApp{
		conf:        conf,
		logger:      logger,
		usrRepo:     inmemdb.NewUserRepository(db),
		sessionRepo: inmemdb.NewSessionRepository(db),
		mailSvc:     emailsvc.NewConsoleServiceMock(logger, conf),
		events:      &eventsvc.Recorder{},
		files:       exportsvc.NewMemoryStore(),
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	usrSvc := user.NewServiceMock(app.usrRepo, app.mailSvc)
	app.usrSvc = usrSvc
	sessionSvc := session.NewService(app.sessionRepo, app.events, logger)
	courseSvc := course.NewService(inmemdb.NewCourseRepository(db), usrSvc, sessionSvc, app.files, app.events, logger, conf)
	registrationSvc := registration.NewService(inmemdb.NewRegistrationRepository(db), usrSvc, app.mailSvc, app.events, logger)

	app.server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         usrSvc,
		SessionSvc:      sessionSvc,
		CourseSvc:       courseSvc,
		RegistrationSvc: registrationSvc,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
	})
	return app
}

// do serves a request and returns the recorded response.
func (app *testApp) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, echoapi.GetUserClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

func (app *testApp) createUser(t *testing.T, name, uname, pwd string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, app.usrRepo, name, uname, uname+"@test.cd", pwd, roles, true)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err) {
		assert.True(t, ok, "data = %s; want %s", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, app.do(method, tt.path, tt.token, tt.body))
		})
	}
}
