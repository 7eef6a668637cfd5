package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/db"
	"github.com/sells-group/tripmatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	owner_id         TEXT NOT NULL,
	group_id         TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL,
	start_date       DATE,
	end_date         DATE,
	primary_location TEXT,
	traveler_names   JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trips_owner_id ON trips(owner_id);
CREATE INDEX IF NOT EXISTS idx_trips_group_id ON trips(group_id);

CREATE TABLE IF NOT EXISTS trip_items (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id),
	document_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	start_date  DATE NOT NULL,
	end_date    DATE,
	item        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trip_items_trip_id ON trip_items(trip_id);
CREATE INDEX IF NOT EXISTS idx_trip_items_document_id ON trip_items(document_id);

CREATE TABLE IF NOT EXISTS processed_documents (
	idempotency_key TEXT PRIMARY KEY,
	claimed_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_examples (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	sender_domain           TEXT NOT NULL DEFAULT '',
	email_subject           TEXT NOT NULL DEFAULT '',
	email_body_snippet      TEXT NOT NULL DEFAULT '',
	attachment_text_snippet TEXT NOT NULL DEFAULT '',
	corrected_extraction    JSONB NOT NULL,
	provider_pattern        TEXT NOT NULL DEFAULT '',
	item_kind               TEXT NOT NULL DEFAULT '',
	usage_count             INTEGER NOT NULL DEFAULT 0,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extraction_examples_domain ON extraction_examples(sender_domain, usage_count DESC);
`

const pgTripColumns = `id, owner_id, title,
	COALESCE(to_char(start_date, 'YYYY-MM-DD'), ''),
	COALESCE(to_char(end_date, 'YYYY-MM-DD'), ''),
	COALESCE(primary_location, ''),
	traveler_names::text`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) OwnTrips(ctx context.Context, accountID string) ([]model.TripCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgTripColumns+` FROM trips WHERE owner_id = $1 ORDER BY created_at, id`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query own trips")
	}
	return collectTrips(rows, "postgres: scan own trip")
}

func (s *PostgresStore) GroupTrips(ctx context.Context, groupID, excludeAccountID string) ([]model.TripCandidate, error) {
	if groupID == "" {
		return []model.TripCandidate{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgTripColumns+` FROM trips WHERE group_id = $1 AND owner_id <> $2 ORDER BY created_at, id`,
		groupID, excludeAccountID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query group trips")
	}
	return collectTrips(rows, "postgres: scan group trip")
}

func collectTrips(rows pgx.Rows, scanMsg string) ([]model.TripCandidate, error) {
	defer rows.Close()

	out := []model.TripCandidate{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, eris.Wrap(err, scanMsg)
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate trips")
}

func (s *PostgresStore) CreateTrip(ctx context.Context, trip NewTrip) (*model.TripCandidate, error) {
	return insertPgTrip(ctx, s.pool, trip)
}

// pgExecer is a pool or a transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertPgTrip(ctx context.Context, ex pgExecer, trip NewTrip) (*model.TripCandidate, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	names, err := marshalNames(trip.TravelerNames)
	if err != nil {
		return nil, err
	}

	_, err = ex.Exec(ctx,
		`INSERT INTO trips (id, owner_id, group_id, title, start_date, end_date, primary_location, traveler_names, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, trip.OwnerID, trip.GroupID, trip.Title,
		pgDate(trip.StartDate), pgDate(trip.EndDate), optionalText(trip.PrimaryLocation),
		names, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert trip")
	}

	zap.L().Debug("postgres: trip created", zap.String("trip_id", id), zap.String("owner_id", trip.OwnerID))
	return newTripCandidate(id, trip), nil
}

// AttachItems copies items into trip_items and widens the trip to cover
// them, in one transaction.
func (s *PostgresStore) AttachItems(ctx context.Context, tripID, documentID string, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	_, err := s.Persist(ctx, Write{DocumentID: documentID, TripID: tripID, Items: items})
	return err
}

// Persist applies w in one transaction. A concurrent claim on the same key
// blocks until the first transaction ends.
func (s *PostgresStore) Persist(ctx context.Context, w Write) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: persist: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if w.IdempotencyKey != "" {
		tag, err := tx.Exec(ctx,
			`INSERT INTO processed_documents (idempotency_key, claimed_at) VALUES ($1, $2)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			w.IdempotencyKey, time.Now().UTC(),
		)
		if err != nil {
			return "", eris.Wrap(err, "postgres: claim document")
		}
		if tag.RowsAffected() == 0 {
			return "", ErrAlreadyProcessed
		}
	}

	tripID := w.TripID
	if w.NewTrip != nil {
		trip, err := insertPgTrip(ctx, tx, *w.NewTrip)
		if err != nil {
			return "", err
		}
		tripID = trip.ID
	}

	if len(w.Items) > 0 {
		if err := attachPgItems(ctx, tx, tripID, w.DocumentID, w.Items); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: persist: commit")
	}
	return tripID, nil
}

func attachPgItems(ctx context.Context, tx pgx.Tx, tripID, documentID string, items []model.Item) error {
	trip, err := scanTrip(tx.QueryRow(ctx,
		`SELECT `+pgTripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, tripID))
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("postgres: trip not found: %s", tripID)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: attach items: load trip")
	}

	rows, err := itemRows(tripID, documentID, items, pgDate)
	if err != nil {
		return err
	}
	if _, err := db.CopyFrom(ctx, tx, "trip_items", itemColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: attach items")
	}

	applyItems(trip, items)
	names, err := marshalNames(trip.TravelerNames)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE trips SET start_date = $1, end_date = $2, traveler_names = $3, updated_at = $4 WHERE id = $5`,
		pgDate(trip.StartDate), pgDate(trip.EndDate), names, time.Now().UTC(), tripID,
	)
	return eris.Wrap(err, "postgres: attach items: update trip")
}

func (s *PostgresStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	var done bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_documents WHERE idempotency_key = $1)`, key,
	).Scan(&done)
	if err != nil {
		return false, eris.Wrap(err, "postgres: check processed document")
	}
	return done, nil
}

// SelectExamples returns up to limit examples, preferring ones from
// senderDomain over global ones, then the most used. Returned examples have
// their usage count bumped.
func (s *PostgresStore) SelectExamples(ctx context.Context, senderDomain string, limit int) ([]model.Example, error) {
	if limit <= 0 {
		limit = DefaultExampleLimit
	}
	senderDomain = strings.ToLower(strings.TrimSpace(senderDomain))

	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_domain, email_subject, email_body_snippet, attachment_text_snippet,
			corrected_extraction::text, provider_pattern, item_kind, usage_count
		FROM extraction_examples
		WHERE sender_domain = $1 OR sender_domain = ''
		ORDER BY (sender_domain = $1) DESC, usage_count DESC, created_at DESC
		LIMIT $2`,
		senderDomain, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query examples")
	}
	defer rows.Close()

	out := []model.Example{}
	ids := []string{}
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan example")
		}
		out = append(out, *ex)
		ids = append(ids, ex.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate examples")
	}
	rows.Close()

	if len(ids) > 0 {
		if _, err := s.pool.Exec(ctx,
			`UPDATE extraction_examples SET usage_count = usage_count + 1 WHERE id = ANY($1)`, ids,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: bump example usage")
		}
	}
	return out, nil
}

func (s *PostgresStore) SaveExample(ctx context.Context, ex model.Example) (string, error) {
	id := ex.ID
	if id == "" {
		id = uuid.New().String()
	}
	corrected, err := marshalExtraction(ex.CorrectedExtraction)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_examples (id, sender_domain, email_subject, email_body_snippet,
			attachment_text_snippet, corrected_extraction, provider_pattern, item_kind, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, strings.ToLower(strings.TrimSpace(ex.SenderDomain)), ex.Subject, ex.BodySnippet,
		ex.AttachmentSnippet, corrected, ex.ProviderPattern, ex.ItemKind, ex.UsageCount,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert example")
	}
	return id, nil
}

// pgDate is the nullable DATE parameter form of d.
func pgDate(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.Time()
}
