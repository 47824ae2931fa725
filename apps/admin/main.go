package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
	eventsvc "github.com/trezcool/scholar/services/events"
	logsvc "github.com/trezcool/scholar/services/logger"
	"github.com/trezcool/scholar/storage/database"
	sqlxrepos "github.com/trezcool/scholar/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	ctx := context.Background()

	if err := run(ctx, conf, logger); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func run(ctx context.Context, conf *core.Config, logger core.Logger) error {
	db, err := database.Open(ctx, conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var events core.EventPublisher = &eventsvc.Nop{}
	if conf.Nats.URL != "" {
		pub, err := eventsvc.NewNatsPublisher(conf, logger)
		if err != nil {
			return errors.Wrap(err, "setting up events")
		}
		defer pub.Close()
		events = pub
	}

	cli := newCommandLine(
		db,
		sqlxrepos.NewUserRepository(db),
		session.NewService(sqlxrepos.NewSessionRepository(db), events, logger),
	)
	return cli.run(ctx, os.Args)
}
