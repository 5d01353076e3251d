package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Store persists tasks in a single relational table. It holds no locks of
// its own; concurrent callers are serialized by the engine.
type Store struct {
	db      *sqlx.DB
	dialect dialect

	list       *sqlx.Stmt
	get        *sqlx.Stmt
	insert     *sqlx.Stmt
	updateDone *sqlx.Stmt
	del        *sqlx.Stmt
}

type Options struct {
	Driver string
	DSN    string
}

// Open connects to the engine, creates the tasks table if needed and
// prepares every statement the store uses.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := lookupDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := d.prepare(opts.DSN)
	if err != nil {
		return nil, opErr("open", "", ErrIO, err)
	}
	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, opErr("open", "", ErrIO, err)
	}
	if d.driver == DriverSQLite {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("open", "", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepare(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, q := range s.dialect.pragmas {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return classify("migrate", "", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.createDDL); err != nil {
		return classify("migrate", "", err)
	}
	return nil
}

func (s *Store) prepare(ctx context.Context) error {
	stmts := []struct {
		dst   **sqlx.Stmt
		query string
	}{
		{&s.list, `SELECT id, title, done, createdAt FROM tasks ORDER BY createdAt DESC, id ASC`},
		{&s.get, `SELECT id, title, done, createdAt FROM tasks WHERE id = ?`},
		{&s.insert, `INSERT INTO tasks (id, title, done, createdAt) VALUES (?, ?, ?, ?)`},
		{&s.updateDone, `UPDATE tasks SET done = ? WHERE id = ?`},
		{&s.del, `DELETE FROM tasks WHERE id = ?`},
	}
	for _, st := range stmts {
		stmt, err := s.db.PreparexContext(ctx, st.query)
		if err != nil {
			return classify("prepare", "", err)
		}
		*st.dst = stmt
	}
	return nil
}

func (s *Store) Close() error {
	for _, stmt := range []*sqlx.Stmt{s.list, s.get, s.insert, s.updateDone, s.del} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", "", s.db.PingContext(ctx))
}

// Version asks the engine for its name and version, e.g. "sqlite 3.45.1".
func (s *Store) Version(ctx context.Context) (string, error) {
	var ver string
	if err := s.db.GetContext(ctx, &ver, s.dialect.versionQuery); err != nil {
		return "", classify("version", "", err)
	}
	return ver, nil
}

// ---- Data types ----

// Task is the single persisted entity.
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"createdAt"`
}

// taskRow mirrors the table; the engine may hand back done as any integer
// type, so it is scanned loosely and converted in toTask.
type taskRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	Done      int64  `db:"done"`
	CreatedAt string `db:"createdAt"`
}

func (r taskRow) toTask() Task {
	return Task{ID: r.ID, Title: r.Title, Done: r.Done == 1, CreatedAt: r.CreatedAt}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ---- Operations ----

// List returns every task, most recently created first. Equal createdAt
// values are ordered by id.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	var rows []taskRow
	if err := s.list.SelectContext(ctx, &rows); err != nil {
		return nil, classify("list", "", err)
	}
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTask())
	}
	return out, nil
}

// Get looks up a single task. A missing row is reported through ok.
func (s *Store) Get(ctx context.Context, id string) (Task, bool, error) {
	var r taskRow
	err := s.get.GetContext(ctx, &r, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, classify("get", id, err)
	}
	return r.toTask(), true, nil
}

// Insert persists a new task exactly as given.
func (s *Store) Insert(ctx context.Context, t Task) error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return opErr("insert", t.ID, ErrConstraintViolation, errors.New("id is required"))
	case strings.TrimSpace(t.Title) == "":
		return opErr("insert", t.ID, ErrConstraintViolation, errors.New("title is required"))
	case strings.TrimSpace(t.CreatedAt) == "":
		return opErr("insert", t.ID, ErrConstraintViolation, errors.New("createdAt is required"))
	}
	if _, err := s.insert.ExecContext(ctx, t.ID, t.Title, boolToInt(t.Done), t.CreatedAt); err != nil {
		return classify("insert", t.ID, err)
	}
	return nil
}

// SetDone updates the completion flag and reads the row back inside one
// transaction, so the returned task is exactly what was written.
func (s *Store) SetDone(ctx context.Context, id string, done bool) (Task, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Task{}, false, classify("set done", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.StmtxContext(ctx, s.updateDone).ExecContext(ctx, boolToInt(done), id); err != nil {
		return Task{}, false, classify("set done", id, err)
	}
	// The read-back decides existence: MySQL reports zero affected rows when
	// the flag already had the requested value.
	var r taskRow
	err = tx.StmtxContext(ctx, s.get).GetContext(ctx, &r, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, classify("set done", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Task{}, false, classify("set done", id, err)
	}
	return r.toTask(), true, nil
}

// Delete removes the task and reports whether a row was actually deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.del.ExecContext(ctx, id)
	if err != nil {
		return false, classify("delete", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete", id, err)
	}
	return n > 0, nil
}
