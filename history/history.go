// Package history - SQLite audit log of classifications and weight updates.
//
// The log is write-mostly and never feeds back into the weight ledger: a restart still starts the
// ledger at zero, the log only keeps what happened.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS classifications (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	source      TEXT NOT NULL,
	subject     TEXT,
	mode        TEXT,
	category    TEXT,
	confidence  REAL NOT NULL,
	recyclable  INTEGER,
	error       TEXT,
	stages_json TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS classifications_category ON classifications(category);

CREATE TABLE IF NOT EXISTS weight_events (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	kind           TEXT NOT NULL,
	category       TEXT,
	kg             REAL NOT NULL,
	total_weight   REAL NOT NULL,
	created_at     TEXT NOT NULL
);
`

// DefaultLimit bounds Recent and Weights when no limit is given.
const DefaultLimit = 50

// Sources of a classification.
const (
	SourceAPI    = "api"
	SourceUpload = "upload"
	SourceCLI    = "cli"
)

// Weight event kinds.
const (
	KindAdd   = "add"
	KindReset = "reset"
)

// Classification is one logged classification.
type Classification struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	// Subject names the input: a file path or upload name. Empty for base64 payloads.
	Subject    string                   `json:"subject,omitempty"`
	Mode       classifier.Mode          `json:"mode,omitempty"`
	Category   *waste.Category          `json:"category"`
	Confidence float32                  `json:"confidence"`
	Recyclable *bool                    `json:"recyclable"`
	Error      *string                  `json:"error"`
	Stages     []classifier.StageResult `json:"stages,omitempty"`
}

// FromResult converts an engine result into a log entry.
func FromResult(source, subject string, mode classifier.Mode, res classifier.Result) Classification {
	return Classification{
		Source:     source,
		Subject:    subject,
		Mode:       mode,
		Category:   res.Category,
		Confidence: res.Confidence,
		Recyclable: res.Recyclable,
		Error:      res.Error,
		Stages:     res.Stages,
	}
}

// WeightEvent is one logged ledger mutation.
type WeightEvent struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	// Category is empty for resets.
	Category waste.Category `json:"category,omitempty"`
	Kg       float64        `json:"kg"`
	// TotalWeight is the ledger grand total after the event.
	TotalWeight float64 `json:"total_weight"`
}

// Store is the SQLite backed log. A nil *Store records nothing and reads empty, so callers can
// hold one unconditionally.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database and applies the schema.
//
// Arguments:
//   - path: The database file. ":memory:" keeps the log in memory.
//
// Returns:
//   - *Store: The store.
//   - error: If the database cannot be opened or migrated.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "history: open db")
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "history: %s", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "history: migrate")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// RecordClassification appends a classification. ID and Time are filled when empty.
func (s *Store) RecordClassification(ctx context.Context, c Classification) error {
	if s == nil {
		return nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Time.IsZero() {
		c.Time = time.Now()
	}

	var stages any
	if len(c.Stages) > 0 {
		b, err := json.Marshal(c.Stages)
		if err != nil {
			return errors.Wrap(err, "history: marshal stages")
		}
		stages = string(b)
	}

	var category, recyclable any
	if c.Category != nil {
		category = string(*c.Category)
	}
	if c.Recyclable != nil {
		recyclable = *c.Recyclable
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifications
		 (id, source, subject, mode, category, confidence, recyclable, error, stages_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Source, nullString(c.Subject), nullString(string(c.Mode)), category,
		c.Confidence, recyclable, c.Error, stages, c.Time.UTC().Format(time.RFC3339Nano),
	)
	return errors.Wrap(err, "history: insert classification")
}

// RecordWeight appends a weight event. ID and Time are filled when empty.
func (s *Store) RecordWeight(ctx context.Context, w WeightEvent) error {
	if s == nil {
		return nil
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Time.IsZero() {
		w.Time = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weight_events (id, kind, category, kg, total_weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Kind, nullString(string(w.Category)), w.Kg, w.TotalWeight,
		w.Time.UTC().Format(time.RFC3339Nano),
	)
	return errors.Wrap(err, "history: insert weight event")
}

// Recent returns the newest classifications first.
//
// Arguments:
//   - ctx: Bounds the query.
//   - limit: Maximum rows. Zero or less uses DefaultLimit.
//
// Returns:
//   - []Classification: The entries, never nil.
//   - error: On query failure.
func (s *Store) Recent(ctx context.Context, limit int) ([]Classification, error) {
	out := []Classification{}
	if s == nil {
		return out, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, subject, mode, category, confidence, recyclable, error, stages_json, created_at
		 FROM classifications ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "history: query classifications")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                       Classification
			subject, mode, category sql.NullString
			errText, stages         sql.NullString
			recyclable              sql.NullBool
			created                 string
		)
		if err := rows.Scan(&c.ID, &c.Source, &subject, &mode, &category, &c.Confidence,
			&recyclable, &errText, &stages, &created); err != nil {
			return nil, errors.Wrap(err, "history: scan classification")
		}

		c.Subject = subject.String
		c.Mode = classifier.Mode(mode.String)
		if category.Valid {
			cat := waste.Category(category.String)
			c.Category = &cat
		}
		if recyclable.Valid {
			r := recyclable.Bool
			c.Recyclable = &r
		}
		if errText.Valid {
			e := errText.String
			c.Error = &e
		}
		if stages.Valid {
			if err := json.Unmarshal([]byte(stages.String), &c.Stages); err != nil {
				return nil, errors.Wrapf(err, "history: stages of %s", c.ID)
			}
		}
		if c.Time, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, errors.Wrapf(err, "history: time of %s", c.ID)
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "history: read classifications")
}

// Counts returns the number of successful classifications per category.
func (s *Store) Counts(ctx context.Context) (map[waste.Category]int, error) {
	out := map[waste.Category]int{}
	if s == nil {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM classifications
		 WHERE category IS NOT NULL GROUP BY category`)
	if err != nil {
		return nil, errors.Wrap(err, "history: query counts")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, errors.Wrap(err, "history: scan count")
		}
		out[waste.Category(category)] = n
	}
	return out, errors.Wrap(rows.Err(), "history: read counts")
}

// Weights returns the newest weight events first.
func (s *Store) Weights(ctx context.Context, limit int) ([]WeightEvent, error) {
	out := []WeightEvent{}
	if s == nil {
		return out, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, category, kg, total_weight, created_at
		 FROM weight_events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "history: query weight events")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			w        WeightEvent
			category sql.NullString
			created  string
		)
		if err := rows.Scan(&w.ID, &w.Kind, &category, &w.Kg, &w.TotalWeight, &created); err != nil {
			return nil, errors.Wrap(err, "history: scan weight event")
		}
		w.Category = waste.Category(category.String)
		if w.Time, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, errors.Wrapf(err, "history: time of %s", w.ID)
		}
		out = append(out, w)
	}
	return out, errors.Wrap(rows.Err(), "history: read weight events")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
