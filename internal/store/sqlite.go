package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tripmatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	group_id         TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL,
	start_date       TEXT,
	end_date         TEXT,
	primary_location TEXT,
	traveler_names   TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trips_owner_id ON trips(owner_id);
CREATE INDEX IF NOT EXISTS idx_trips_group_id ON trips(group_id);

CREATE TABLE IF NOT EXISTS trip_items (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id),
	document_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	start_date  TEXT NOT NULL,
	end_date    TEXT,
	item        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_trip_items_trip_id ON trip_items(trip_id);

CREATE TABLE IF NOT EXISTS processed_documents (
	idempotency_key TEXT PRIMARY KEY,
	claimed_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_examples (
	id                      TEXT PRIMARY KEY,
	sender_domain           TEXT NOT NULL DEFAULT '',
	email_subject           TEXT NOT NULL DEFAULT '',
	email_body_snippet      TEXT NOT NULL DEFAULT '',
	attachment_text_snippet TEXT NOT NULL DEFAULT '',
	corrected_extraction    TEXT NOT NULL,
	provider_pattern        TEXT NOT NULL DEFAULT '',
	item_kind               TEXT NOT NULL DEFAULT '',
	usage_count             INTEGER NOT NULL DEFAULT 0,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extraction_examples_domain ON extraction_examples(sender_domain);
`

const sqliteTripColumns = `id, owner_id, title, COALESCE(start_date, ''), COALESCE(end_date, ''),
	COALESCE(primary_location, ''), traveler_names`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) OwnTrips(ctx context.Context, accountID string) ([]model.TripCandidate, error) {
	return s.queryTrips(ctx,
		`SELECT `+sqliteTripColumns+` FROM trips WHERE owner_id = ? ORDER BY created_at, rowid`,
		accountID,
	)
}

func (s *SQLiteStore) GroupTrips(ctx context.Context, groupID, excludeAccountID string) ([]model.TripCandidate, error) {
	if groupID == "" {
		return []model.TripCandidate{}, nil
	}
	return s.queryTrips(ctx,
		`SELECT `+sqliteTripColumns+` FROM trips WHERE group_id = ? AND owner_id <> ? ORDER BY created_at, rowid`,
		groupID, excludeAccountID,
	)
}

func (s *SQLiteStore) queryTrips(ctx context.Context, query string, args ...any) ([]model.TripCandidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query trips")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.TripCandidate{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trip")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate trips")
}

func (s *SQLiteStore) CreateTrip(ctx context.Context, trip NewTrip) (*model.TripCandidate, error) {
	return insertSQLiteTrip(ctx, s.db, trip)
}

// sqlExecer is a *sql.DB or a *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLiteTrip(ctx context.Context, ex sqlExecer, trip NewTrip) (*model.TripCandidate, error) {
	id := uuid.New().String()
	now := sqliteTimestamp()

	names, err := marshalNames(trip.TravelerNames)
	if err != nil {
		return nil, err
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO trips (id, owner_id, group_id, title, start_date, end_date, primary_location, traveler_names, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, trip.OwnerID, trip.GroupID, trip.Title,
		dateText(trip.StartDate), dateText(trip.EndDate), optionalText(trip.PrimaryLocation),
		string(names), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert trip")
	}

	zap.L().Debug("sqlite: trip created", zap.String("trip_id", id), zap.String("owner_id", trip.OwnerID))
	return newTripCandidate(id, trip), nil
}

func (s *SQLiteStore) AttachItems(ctx context.Context, tripID, documentID string, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	_, err := s.Persist(ctx, Write{DocumentID: documentID, TripID: tripID, Items: items})
	return err
}

// Persist applies w in one transaction. The claim is the first write, so the
// transaction holds the database write lock from then on.
func (s *SQLiteStore) Persist(ctx context.Context, w Write) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: persist: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if w.IdempotencyKey != "" {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO processed_documents (idempotency_key) VALUES (?)`, w.IdempotencyKey,
		)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: claim document")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return "", ErrAlreadyProcessed
		}
	}

	tripID := w.TripID
	if w.NewTrip != nil {
		trip, err := insertSQLiteTrip(ctx, tx, *w.NewTrip)
		if err != nil {
			return "", err
		}
		tripID = trip.ID
	}

	if len(w.Items) > 0 {
		if err := attachSQLiteItems(ctx, tx, tripID, w.DocumentID, w.Items); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: persist: commit")
	}
	return tripID, nil
}

func attachSQLiteItems(ctx context.Context, tx *sql.Tx, tripID, documentID string, items []model.Item) error {
	trip, err := scanTrip(tx.QueryRowContext(ctx,
		`SELECT `+sqliteTripColumns+` FROM trips WHERE id = ?`, tripID))
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Errorf("sqlite: trip not found: %s", tripID)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: attach items: load trip")
	}

	rows, err := itemRows(tripID, documentID, items, dateText)
	if err != nil {
		return err
	}
	for _, row := range rows {
		row[len(row)-1] = string(row[len(row)-1].([]byte))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trip_items (`+strings.Join(itemColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert trip item")
		}
	}

	applyItems(trip, items)
	names, err := marshalNames(trip.TravelerNames)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE trips SET start_date = ?, end_date = ?, traveler_names = ?, updated_at = ? WHERE id = ?`,
		dateText(trip.StartDate), dateText(trip.EndDate), string(names), sqliteTimestamp(), tripID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: attach items: update trip")
	}
	return checkRowsAffected(res, "trip", tripID)
}

func (s *SQLiteStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	var done bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_documents WHERE idempotency_key = ?)`, key,
	).Scan(&done)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check processed document")
	}
	return done, nil
}

func (s *SQLiteStore) SelectExamples(ctx context.Context, senderDomain string, limit int) ([]model.Example, error) {
	if limit <= 0 {
		limit = DefaultExampleLimit
	}
	senderDomain = strings.ToLower(strings.TrimSpace(senderDomain))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_domain, email_subject, email_body_snippet, attachment_text_snippet,
			corrected_extraction, provider_pattern, item_kind, usage_count
		FROM extraction_examples
		WHERE sender_domain = ? OR sender_domain = ''
		ORDER BY (sender_domain = ?) DESC, usage_count DESC, created_at DESC, rowid DESC
		LIMIT ?`,
		senderDomain, senderDomain, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query examples")
	}

	out := []model.Example{}
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan example")
		}
		out = append(out, *ex)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: iterate examples")
	}
	rows.Close() //nolint:errcheck

	if len(out) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(out))
	args := make([]any, len(out))
	for i, ex := range out {
		placeholders[i] = "?"
		args[i] = ex.ID
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE extraction_examples SET usage_count = usage_count + 1 WHERE id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: bump example usage")
	}
	return out, nil
}

func (s *SQLiteStore) SaveExample(ctx context.Context, ex model.Example) (string, error) {
	id := ex.ID
	if id == "" {
		id = uuid.New().String()
	}
	corrected, err := marshalExtraction(ex.CorrectedExtraction)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_examples (id, sender_domain, email_subject, email_body_snippet,
			attachment_text_snippet, corrected_extraction, provider_pattern, item_kind, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, strings.ToLower(strings.TrimSpace(ex.SenderDomain)), ex.Subject, ex.BodySnippet,
		ex.AttachmentSnippet, string(corrected), ex.ProviderPattern, ex.ItemKind, ex.UsageCount,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert example")
	}
	return id, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// sqliteTimestamp is a fixed-width UTC timestamp so text order is time order.
func sqliteTimestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05.000000000")
}
