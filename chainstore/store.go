// Package chainstore wraps an embedded SQLite database file with the
// WAL-mode pragmas, busy timeout, and named-statement cache that spec.md
// §4.1 requires of each of the four persistent stores (core, bundles,
// data, moderation).
//
// It is a direct descendant of the teacher's consumer/store-sqlite.Store:
// the same "open, bootstrap, prepare a fixed set of named statements" idiom,
// minus the RocksDB-page-file / custom-VFS / recoverylog machinery that
// store-sqlite layers on top for crash-recovered *consumer* processes. This
// spec's stores are plain local SQLite files with no replicated recovery
// log, so that machinery has no home here (see DESIGN.md).
package chainstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// BusyTimeout is the SQLite busy_timeout applied to every store connection,
// per spec.md §4.1 ("connections use a 30-second busy timeout").
const BusyTimeout = 30 * time.Second

// PageSize is the SQLite page size the stores are laid out for, per spec.md
// §6. Open sets no page_size pragma; each file gets the page size SQLite
// creates it with.
const PageSize = 4096

// ErrTransient is returned when a store operation fails for a retryable
// reason (the store is locked, or I/O failed transiently). It corresponds
// to spec.md §7's *store-transient* error category.
var ErrTransient = errors.New("chainstore: store-transient")

// Store is one of the four embedded relational databases of spec.md §2:
// core, bundles, data, or moderation. It owns a *sql.DB, a set of named
// prepared statements loaded once at construction, and (optionally) a
// second store ATTACH'd as a secondary schema for cross-store joins.
type Store struct {
	Name string
	DB   *sql.DB

	stmts map[string]*sql.Stmt
}

// Open opens (creating if necessary) the SQLite database file at path,
// applies the WAL and busy-timeout settings through its DSN, runs
// bootstrapSQL (DDL: CREATE TABLE IF NOT EXISTS, indexes), and prepares each
// named statement in statements. name is used only in log lines and error
// messages.
func Open(name, path string, bootstrapSQL string, statements map[string]string) (*Store, error) {
	var dsn = dsnFor(path)

	var db, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %s store at %s", name, path)
	}
	// Every job on this store, from any of its pools' workers, goes through
	// this one connection, so its statements run one at a time; workers do
	// not hold connections of their own.
	db.SetMaxOpenConns(1)

	var s = &Store{Name: name, DB: db, stmts: make(map[string]*sql.Stmt, len(statements))}

	if bootstrapSQL != "" {
		if _, err := db.Exec(bootstrapSQL); err != nil {
			db.Close()
			return nil, errors.WithMessagef(err, "bootstrapping %s store schema", name)
		}
	}
	for stmtName, text := range statements {
		var stmt, err = db.Prepare(text)
		if err != nil {
			db.Close()
			return nil, errors.WithMessagef(err, "preparing %s statement %q", name, stmtName)
		}
		s.stmts[stmtName] = stmt
	}

	log.WithFields(log.Fields{"store": name, "path": path, "statements": len(statements)}).
		Debug("opened store")
	return s, nil
}

// dsnFor builds the mattn/go-sqlite3 DSN carrying the WAL, busy-timeout and
// foreign-key settings; it sets no page size. An empty or ":memory:" path
// opens the shared-cache in-memory database, used by tests.
func dsnFor(path string) string {
	var v = url.Values{}
	v.Set("_journal_mode", "WAL")
	v.Set("_busy_timeout", fmt.Sprintf("%d", BusyTimeout.Milliseconds()))
	v.Set("_foreign_keys", "on")

	if path == "" || path == ":memory:" {
		return "file::memory:?cache=shared&" + v.Encode()
	}
	return "file:" + path + "?" + v.Encode()
}

// Attach ATTACHes other's database file as schema alias under this store's
// connection, so prepared statements on s may reference
// "<alias>.<table>" — the cross-store join path spec.md §4.1 and §9
// require between core and bundles.
func (s *Store) Attach(ctx context.Context, alias string, otherPath string) error {
	var _, err = s.DB.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE %s AS %s",
		quoteSQLLiteral(dsnFor(otherPath)), alias))
	if err != nil {
		return errors.WithMessagef(err, "attaching %s to %s store", alias, s.Name)
	}
	return nil
}

func quoteSQLLiteral(s string) string {
	// SQLite string literals escape embedded quotes by doubling them.
	var out = make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	out = append(out, '\'')
	return string(out)
}

// Prepare adds one more named statement after Open, for statements that
// reference an ATTACHed schema and so must be prepared after Attach runs
// on this store's single connection.
func (s *Store) Prepare(name, text string) error {
	var stmt, err = s.DB.Prepare(text)
	if err != nil {
		return errors.WithMessagef(err, "preparing %s statement %q", s.Name, name)
	}
	s.stmts[name] = stmt
	return nil
}

// Stmt returns the named prepared statement, panicking if it was not
// registered at Open -- a programmer error, not a runtime condition, the
// same contract store-sqlite.Store.Stmts uses (indexed by a fixed,
// construction-time-known set of names).
func (s *Store) Stmt(name string) *sql.Stmt {
	var stmt, ok = s.stmts[name]
	if !ok {
		panic(fmt.Sprintf("chainstore: %s store has no statement %q", s.Name, name))
	}
	return stmt
}

// WithTx runs fn within a single *sql.Tx, committing on success and rolling
// back (and surfacing fn's error) on failure. Every multi-statement
// ingestion operation of spec.md §4.2 is wrapped this way.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var tx, err = s.DB.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classifyErr(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyErr(err)
	}
	return nil
}

// classifyErr wraps a store-level error as ErrTransient when it looks like
// a retryable SQLite busy/locked condition, matching spec.md §7's
// *store-transient* taxonomy entry.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var msg = err.Error()
	for _, sub := range []string{"database is locked", "busy", "SQLITE_BUSY"} {
		if strings.Contains(msg, sub) {
			return errors.WithMessage(ErrTransient, msg)
		}
	}
	return err
}

// Close closes every prepared statement and the underlying database.
func (s *Store) Close() error {
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	return s.DB.Close()
}
