package store

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrDuplicateKey        = errors.New("task id already exists")
	ErrConstraintViolation = errors.New("task violates a required field constraint")
	ErrIO                  = errors.New("task storage failure")
)

// MySQL server error numbers, see
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlDupEntry      = 1062
	mysqlBadNull       = 1048
	mysqlNoDefaultCol  = 1364
	mysqlCheckViolated = 3819
)

// OpError reports a failed store operation. It unwraps to both its Kind
// (one of the sentinels above) and the underlying driver error.
type OpError struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %q: %v: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("store %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error { return []error{e.Kind, e.Err} }

func opErr(op, id string, kind, err error) error {
	return &OpError{Op: op, ID: id, Kind: kind, Err: err}
}

// classify maps a driver error onto the store's error kinds.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrIO

	var sqliteErr sqlite3.Error
	var mysqlErr *mysql.MySQLError
	switch {
	case errors.As(err, &sqliteErr):
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			kind = ErrDuplicateKey
		case sqlite3.ErrConstraintNotNull, sqlite3.ErrConstraintCheck:
			kind = ErrConstraintViolation
		}
	case errors.As(err, &mysqlErr):
		switch mysqlErr.Number {
		case mysqlDupEntry:
			kind = ErrDuplicateKey
		case mysqlBadNull, mysqlNoDefaultCol, mysqlCheckViolated:
			kind = ErrConstraintViolation
		}
	}
	return opErr(op, id, kind, err)
}
