package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/scholar/apps/api/echo"
	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/registration"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	emailsvc "github.com/trezcool/scholar/services/email"
	eventsvc "github.com/trezcool/scholar/services/events"
	exportsvc "github.com/trezcool/scholar/services/exports"
	logsvc "github.com/trezcool/scholar/services/logger"
	"github.com/trezcool/scholar/storage/database"
	inmemdb "github.com/trezcool/scholar/storage/database/inmem"
	sqlxrepos "github.com/trezcool/scholar/storage/database/sqlx"
)

// MemoryEngine runs the API on the in-memory store, without a database.
const MemoryEngine = "memory"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories are provided together so that they share one store.
type Repositories struct {
	dig.Out
	Users         user.Repository
	Sessions      session.Repository
	Courses       course.Repository
	Registrations registration.Repository
}

type serverParams struct {
	dig.In
	Conf            *core.Config
	Logger          core.Logger
	UserSvc         user.ServiceInterface
	SessionSvc      session.ServiceInterface
	CourseSvc       course.ServiceInterface
	RegistrationSvc registration.ServiceInterface
	Validate        *validator.Validate
	Translator      ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

// newDB is nil with the in-memory engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, error) {
	if conf.Database.Engine == MemoryEngine {
		loggerParam.Logger.Warn("running on the in-memory store: data is lost on exit")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newRepositories(db *sql.DB) Repositories {
	if db == nil {
		mem := inmemdb.New()
		return Repositories{
			Users:         inmemdb.NewUserRepository(mem),
			Sessions:      inmemdb.NewSessionRepository(mem),
			Courses:       inmemdb.NewCourseRepository(mem),
			Registrations: inmemdb.NewRegistrationRepository(mem),
		}
	}
	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Sessions:      sqlxrepos.NewSessionRepository(db),
		Courses:       sqlxrepos.NewCourseRepository(db),
		Registrations: sqlxrepos.NewRegistrationRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(log.New(os.Stdout, "EMAIL : ", log.LstdFlags), logger, conf)
	}
	return emailsvc.NewSendgridService(logger, conf)
}

func newEventPublisher(conf *core.Config, logger core.Logger) (core.EventPublisher, error) {
	if conf.Nats.URL == "" {
		return &eventsvc.Nop{}, nil
	}
	return eventsvc.NewNatsPublisher(conf, logger)
}

func newFileStore(conf *core.Config, logger core.Logger) (core.FileStore, error) {
	if conf.S3.Endpoint == "" {
		logger.Warn("no s3 endpoint configured: gradebook archives are kept in memory")
		return exportsvc.NewMemoryStore(), nil
	}
	return exportsvc.NewS3Store(context.Background(), conf)
}

func newUserService(repo user.Repository, mailSvc core.EmailService, conf *core.Config) user.ServiceInterface {
	return user.NewService(repo, mailSvc, conf)
}

func newSessionService(repo session.Repository, events core.EventPublisher, logger core.Logger) session.ServiceInterface {
	return session.NewService(repo, events, logger)
}

func newCourseService(
	repo course.Repository,
	users user.ServiceInterface,
	sessions session.ServiceInterface,
	files core.FileStore,
	events core.EventPublisher,
	logger core.Logger,
	conf *core.Config,
) course.ServiceInterface {
	return course.NewService(repo, users, sessions, files, events, logger, conf)
}

func newRegistrationService(
	repo registration.Repository,
	users user.ServiceInterface,
	mailSvc core.EmailService,
	events core.EventPublisher,
	logger core.Logger,
) registration.ServiceInterface {
	return registration.NewService(repo, users, mailSvc, events, logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:            p.Conf,
		Logger:          p.Logger,
		UserSvc:         p.UserSvc,
		SessionSvc:      p.SessionSvc,
		CourseSvc:       p.CourseSvc,
		RegistrationSvc: p.RegistrationSvc,
		Validate:        p.Validate,
		Translator:      p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	return NewWithConfig(core.NewConfig)
}

// NewWithConfig builds the container around a custom config constructor (tests use core.NewTestConfig).
func NewWithConfig(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newEventPublisher))
	must(c.Provide(newFileStore))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newUserService))
	must(c.Provide(newSessionService))
	must(c.Provide(newCourseService))
	must(c.Provide(newRegistrationService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(fmt.Sprintf("failed to provide dependency: %v", err))
	}
}
