package txnstore

import (
	"context"
	"database/sql"
	"math"
	"net/url"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sqltxn.dev/core/pressure"
	pc "go.sqltxn.dev/core/protocol"
)

// Database executes Transactions against a relational store which it owns.
//
// The store is opened by the first Transaction which needs it, and is closed
// only by a Transaction consisting of a sole CLOSE Command. A Database is not
// safe for concurrent use. All calls, including delivery of memory pressure
// notifications to its pressure.Source subscription, must be confined to a
// single goroutine. Runner provides such confinement.
type Database struct {
	// Dialect of the store. NewDatabase initializes Dialect from the driver.
	Dialect Dialect
	// Path is the file path of a SQLite database, or the connection string
	// of a PostgreSQL database.
	Path string
	// SQLiteURIValues of the filename URI used to open a SQLite database.
	// NewDatabase initializes SQLiteURIValues, but clients may customize URI
	// parameters prior to the store being opened. See the set of parameters
	// supported by github.com/mattn/go-sqlite3, and by SQLite itself
	// (https://www.sqlite.org/uri.html).
	SQLiteURIValues url.Values
	// Pressure is subscribed to upon the first INITIALIZE of an opened store,
	// and its subscription is held until the store is closed. It may be nil.
	Pressure pressure.Source

	db           *sql.DB
	conn         *sql.Conn
	meta         *metaTable
	initialized  bool
	subscription *pressure.Subscription
}

// NewDatabase returns a Database of the database/sql |driver|, which is
// opened at |path| upon its first Transaction.
func NewDatabase(driver, path string) (*Database, error) {
	var dialect, err = DialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &Database{
		Dialect: dialect,
		Path:    path,
		SQLiteURIValues: url.Values{
			"_foreign_keys": {"1"},
			"_journal_mode": {"TRUNCATE"},
			"_synchronous":  {"FULL"},
		},
	}, nil
}

// URIForDB returns a SQLite URI of the database |name| given the current
// SQLiteURIValues. Eg:
//
//	URIForDB("ledger.db") => "file:ledger.db?_foreign_keys=1&_journal_mode=TRUNCATE&..."
func (d *Database) URIForDB(name string) string {
	return "file:" + name + "?" + d.SQLiteURIValues.Encode()
}

// IsOpen returns true if the store is open.
func (d *Database) IsOpen() bool { return d.db != nil }

// IsInitialized returns true if an INITIALIZE has succeeded since the store
// was opened.
func (d *Database) IsInitialized() bool { return d.initialized }

// OpenInMemory opens a private in-memory store, rather than one at Path.
// It's intended for tests, and does nothing if the store is already open.
func (d *Database) OpenInMemory() error {
	if d.db != nil {
		return nil
	} else if !d.Dialect.SupportsInMemory {
		return errors.Errorf("driver %q doesn't support in-memory databases", d.Dialect.Driver)
	}
	return d.open(d.URIForDB(":memory:"))
}

func (d *Database) open(dsn string) error {
	var db, err = sql.Open(d.Dialect.Driver, dsn)
	if err != nil {
		return errors.WithMessage(err, "opening database")
	}
	// Transactions are applied one at a time, so only one connection is
	// needed. It's also required for in-memory SQLite databases, which are
	// private to their connection.
	db.SetMaxOpenConns(1)

	// Hold the connection for the lifetime of the session, which permits
	// READs to run directly on its driver connection.
	conn, err := db.Conn(context.Background())
	if err == nil {
		err = conn.PingContext(context.Background())
	}
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		_ = db.Close()
		return errors.WithMessage(err, "connecting to database")
	}
	d.db, d.conn = db, conn

	log.WithFields(log.Fields{
		"driver": d.Dialect.Driver,
		"path":   d.Path,
	}).Debug("opened database")
	return nil
}

func (d *Database) dsn() string {
	if d.Dialect.Driver == SQLite.Driver {
		return d.URIForDB(d.Path)
	}
	return d.Path
}

// RunTransaction applies the Transaction and returns its Response.
// RunTransaction blocks until all Commands have resolved, and cannot be
// cancelled once started.
func (d *Database) RunTransaction(txn *pc.Transaction) *pc.Response {
	var started = time.Now()
	var resp = d.runTransaction(context.Background(), txn)

	transactionsTotal.WithLabelValues(resp.Status.String()).Inc()
	transactionDurationSeconds.Observe(time.Since(started).Seconds())
	return resp
}

func (d *Database) runTransaction(ctx context.Context, txn *pc.Transaction) *pc.Response {
	if err := checkTransaction(txn); err != nil {
		log.WithField("err", err).Warn("rejected malformed transaction")
		return &pc.Response{Status: pc.StatusResponseError}
	}

	if d.db == nil {
		if err := d.open(d.dsn()); err != nil {
			log.WithFields(log.Fields{
				"err":  err,
				"path": d.Path,
			}).Error("failed to open database")
			return &pc.Response{Status: pc.StatusInitializationError}
		}
	}

	// CLOSE must always be sent as the single Command of its Transaction.
	if txn.IsClose() {
		d.close()
		return &pc.Response{Status: pc.StatusOK}
	}

	var tx, err = d.conn.BeginTx(ctx, nil)
	if err != nil {
		log.WithField("err", err).Error("failed to begin transaction")
		return &pc.Response{Status: pc.StatusTransactionError}
	}
	var restore = d.snapshot()

	var result *pc.Result
	var vacuumRequested bool

	for _, cmd := range txn.Commands {
		var status pc.Status
		var res *pc.Result

		switch cmd.Type {
		case pc.CommandInitialize:
			res, status = d.initialize(ctx, tx, txn.Version, txn.CompatibleVersion)
		case pc.CommandRead:
			res, status = d.read(ctx, tx, cmd)
		case pc.CommandExecute:
			res, status = d.execute(ctx, tx, cmd)
		case pc.CommandRun:
			res, status = d.run(ctx, tx, cmd)
		case pc.CommandMigrate:
			status = d.migrate(ctx, tx, txn.Version, txn.CompatibleVersion)
		case pc.CommandVacuum:
			vacuumRequested, status = true, pc.StatusOK
		case pc.CommandClose:
			log.Error("CLOSE must be the only command of its transaction")
			status = pc.StatusCommandError
		default:
			panic("unexpected CommandType " + cmd.Type.String())
		}
		commandsTotal.WithLabelValues(cmd.Type.String(), status.String()).Inc()

		if status != pc.StatusOK {
			if err := tx.Rollback(); err != nil {
				log.WithField("err", err).Error("failed to roll back transaction")
			}
			restore()
			return &pc.Response{Status: status}
		}
		if res != nil {
			result = res
		}
	}

	if err := tx.Commit(); err != nil {
		log.WithField("err", err).Error("failed to commit transaction")
		restore()
		return &pc.Response{Status: pc.StatusTransactionError}
	}

	if vacuumRequested {
		d.vacuum()
	}
	return &pc.Response{Status: pc.StatusOK, Result: result}
}

// checkTransaction verifies the caller contract of a Transaction: that it
// and its Commands are present, and that Commands are of known types with
// well-formed Bindings. It's a narrower check than Transaction.Validate,
// which additionally rejects Transactions that a store is able to answer
// with a more specific Status.
func checkTransaction(txn *pc.Transaction) error {
	if txn == nil {
		return errors.New("expected Transaction")
	}
	for i, cmd := range txn.Commands {
		if cmd == nil {
			return errors.Errorf("expected Commands[%d]", i)
		} else if err := cmd.Type.Validate(); err != nil {
			return errors.WithMessagef(err, "Commands[%d]", i)
		}
		for j, b := range cmd.Bindings {
			if err := b.Validate(); err != nil {
				return errors.WithMessagef(err, "Commands[%d].Bindings[%d]", i, j)
			}
		}
		for j, t := range cmd.RecordBindings {
			if err := t.Validate(); err != nil {
				return errors.WithMessagef(err, "Commands[%d].RecordBindings[%d]", i, j)
			}
		}
	}
	return nil
}

// snapshot captures in-memory session state, returning a closure which
// restores it. Restoring is required when a transaction which initialized
// the session, or migrated it, fails to commit.
func (d *Database) snapshot() func() {
	var initialized = d.initialized
	var meta *metaTable
	if d.meta != nil {
		var m = *d.meta
		meta = &m
	}

	return func() {
		if initialized == d.initialized && meta == nil {
			return
		}
		if !initialized && d.initialized {
			d.subscription.Close()
			d.subscription = nil
		}
		d.initialized, d.meta = initialized, meta
	}
}

func (d *Database) initialize(ctx context.Context, tx *sql.Tx, version, compatible int32) (*pc.Result, pc.Status) {
	if d.initialized {
		return pc.ValueResult(pc.IntValue(d.meta.version)), pc.StatusOK
	}

	var meta, err = initMetaTable(ctx, tx, d.Dialect, version, compatible)
	if err != nil {
		log.WithField("err", err).Error("failed to initialize meta table")
		return nil, pc.StatusInitializationError
	}
	d.meta, d.initialized = meta, true

	if d.Pressure != nil {
		d.subscription = d.Pressure.Subscribe(d.onMemoryPressure)
	}
	return pc.ValueResult(pc.IntValue(meta.version)), pc.StatusOK
}

func (d *Database) read(ctx context.Context, tx *sql.Tx, cmd *pc.Command) (*pc.Result, pc.Status) {
	if !d.initialized {
		return nil, pc.StatusInitializationError
	}
	var args, err = bindArgs(cmd.Bindings)
	if err != nil {
		log.WithField("err", err).Error("failed to bind read parameters")
		return nil, pc.StatusCommandError
	}

	var records []pc.Record
	if d.Dialect.ReadsStorageClass {
		records, err = queryStorageClasses(ctx, d.conn, cmd.SQL, args, cmd.RecordBindings)
	} else {
		records, err = queryRecords(ctx, tx, cmd.SQL, args, cmd.RecordBindings)
	}
	if err != nil {
		log.WithFields(log.Fields{"err": err, "sql": cmd.SQL}).Error("DB read error")
		return nil, pc.StatusCommandError
	}
	return pc.RecordsResult(records), pc.StatusOK
}

func queryRecords(ctx context.Context, tx *sql.Tx, query string, args []interface{}, declared []pc.ColumnType) ([]pc.Record, error) {
	var rows, err = tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return readRecords(sqlRows{rows}, declared)
}

func (d *Database) execute(ctx context.Context, tx *sql.Tx, cmd *pc.Command) (*pc.Result, pc.Status) {
	if !d.initialized {
		return nil, pc.StatusInitializationError
	}
	var res, err = tx.ExecContext(ctx, cmd.SQL)
	if err != nil {
		log.WithFields(log.Fields{"err": err, "sql": cmd.SQL}).Error("DB execute error")
		return nil, pc.StatusCommandError
	}
	return changeCount(res), pc.StatusOK
}

func (d *Database) run(ctx context.Context, tx *sql.Tx, cmd *pc.Command) (*pc.Result, pc.Status) {
	if !d.initialized {
		return nil, pc.StatusInitializationError
	}
	var args, err = bindArgs(cmd.Bindings)
	if err != nil {
		log.WithField("err", err).Error("failed to bind run parameters")
		return nil, pc.StatusCommandError
	}

	res, err := tx.ExecContext(ctx, cmd.SQL, args...)
	if err != nil {
		log.WithFields(log.Fields{"err": err, "sql": cmd.SQL}).Error("DB run error")
		return nil, pc.StatusCommandError
	}
	return changeCount(res), pc.StatusOK
}

func (d *Database) migrate(ctx context.Context, tx *sql.Tx, version, compatible int32) pc.Status {
	if !d.initialized {
		return pc.StatusInitializationError
	}
	if err := d.meta.setVersions(ctx, tx, version, compatible); err != nil {
		log.WithFields(log.Fields{
			"err":        err,
			"version":    version,
			"compatible": compatible,
		}).Error("failed to migrate schema version")
		return pc.StatusCommandError
	}
	return pc.StatusOK
}

// vacuum runs maintenance of the store after a commit. Failure is logged,
// but doesn't fail the already-committed transaction.
func (d *Database) vacuum() {
	if _, err := d.conn.ExecContext(context.Background(), d.Dialect.Vacuum); err != nil {
		vacuumFailuresTotal.Inc()
		log.WithField("err", err).Error("error executing VACUUM")
	}
}

// onMemoryPressure asks the store to release cached memory.
func (d *Database) onMemoryPressure(level pressure.Level) {
	if d.db == nil || d.Dialect.TrimMemory == "" {
		return
	}
	if _, err := d.conn.ExecContext(context.Background(), d.Dialect.TrimMemory); err != nil {
		log.WithFields(log.Fields{"err": err, "level": level}).Warn("failed to trim database memory")
		return
	}
	memoryTrimsTotal.Inc()
	log.WithField("level", level).Debug("trimmed database memory")
}

// close the store, discarding session state and releasing its subscription.
func (d *Database) close() {
	d.subscription.Close()
	d.subscription = nil
	d.meta, d.initialized = nil, false

	if err := d.conn.Close(); err != nil && err != sql.ErrConnDone {
		log.WithFields(log.Fields{
			"err":  err,
			"path": d.Path,
		}).Error("failed to release database connection")
	}
	if err := d.db.Close(); err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": d.Path,
		}).Error("failed to close database")
	}
	d.db, d.conn = nil, nil

	log.WithField("path", d.Path).Debug("closed database")
}

// Destroy closes the store if it's open. It's a no-op otherwise.
func (d *Database) Destroy() {
	if d.db != nil {
		d.close()
	}
}

// changeCount returns the count of rows changed by a statement as an
// IntValue, or as an Int64Value if the count overflows an int32.
func changeCount(res sql.Result) *pc.Result {
	var n, err = res.RowsAffected()
	if err != nil {
		log.WithField("err", err).Debug("driver doesn't report rows affected")
		n = 0
	}
	if n > math.MaxInt32 {
		return pc.ValueResult(pc.Int64Value(n))
	}
	return pc.ValueResult(pc.IntValue(int32(n)))
}
