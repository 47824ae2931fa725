// Package sqlxrepos implements the repositories on Postgres.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
)

type base struct {
	exec core.DBExecutor
}

func (b base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return b.exec
}

// RunInTx runs fn in one transaction on the repository's database.
func (b base) RunInTx(ctx context.Context, fn core.TxFunc) error {
	return inTx(ctx, b.exec, fn)
}

// selectRows scans every row of `query` into `dest`, a pointer to a slice of db-tagged structs.
func selectRows(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// namedExec runs a query using `:name` parameters bound from the db tags of `arg`.
func namedExec(ctx context.Context, exec core.DBExecutor, query string, arg interface{}) (sql.Result, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "binding named query")
	}
	return exec.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
}

// inTx runs fn in a transaction, unless `exec` already is one.
func inTx(ctx context.Context, exec core.DBExecutor, fn func(tx core.DBExecutor) error) (err error) {
	db, ok := exec.(core.DB)
	if !ok {
		return fn(exec)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// mustAffect turns "no row affected" into `notFound`.
func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
