package ledger

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteLedger persists audit events to a SQLite database for offline
// analysis and dashboards.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteLedger opens (or creates) the SQLite database and runs migrations.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite ledger opened: %s", dbPath)
	return l, nil
}

func (l *SQLiteLedger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			event_type  TEXT NOT NULL,
			symbol      TEXT,
			strategy    TEXT,
			ticket      INTEGER,
			direction   TEXT,
			volume      REAL,
			price       REAL,
			stop_loss   REAL,
			take_profit REAL,
			profit      REAL,
			fill_mode   TEXT,
			attempt     INTEGER,
			reason      TEXT,
			comment     TEXT,
			detail      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ticket ON audit_events(ticket)`,
	}

	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (l *SQLiteLedger) Record(evt Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`INSERT INTO audit_events
		(timestamp, event_type, symbol, strategy, ticket, direction,
		 volume, price, stop_loss, take_profit, profit,
		 fill_mode, attempt, reason, comment, detail)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		evt.Time.Unix(), string(evt.Type), evt.Symbol, evt.Strategy,
		evt.Ticket, evt.Direction,
		evt.Volume, evt.Price, evt.StopLoss, evt.TakeProfit, evt.Profit,
		evt.Mode, evt.Attempt, evt.Reason, evt.Comment, evt.Detail,
	)
	return err
}

func (l *SQLiteLedger) Close() error {
	log.Println("[INFO] closing sqlite ledger")
	return l.db.Close()
}
