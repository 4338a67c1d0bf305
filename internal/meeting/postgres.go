package meeting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

// PostgresStore persists meetings in PostgreSQL. The one-active-meeting-per-
// pair invariant is enforced by a partial unique index on the canonical pair,
// and read-modify-write cycles are guarded by the version column.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const meetingColumns = `
	id, requester_id, target_id, status, slot_start, slot_end,
	COALESCE(venue,''), COALESCE(idempotency_key,''), created_at, updated_at, version`

func scanMeeting(row pgx.Row) (*Meeting, error) {
	var m Meeting
	err := row.Scan(
		&m.ID, &m.RequesterID, &m.TargetID, &m.Status,
		&m.Slot.Start, &m.Slot.End,
		&m.Venue, &m.IdempotencyKey, &m.CreatedAt, &m.UpdatedAt, &m.Version,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new meeting. The active-pair unique index turns a racing
// duplicate proposal into ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, m *Meeting) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO meetings
			(id, requester_id, target_id, status, slot_start, slot_end,
			 venue, idempotency_key, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), $9, $9, $10)`,
		m.ID, m.RequesterID, m.TargetID, string(m.Status),
		m.Slot.Start, m.Slot.End, m.Venue, m.IdempotencyKey,
		m.CreatedAt, m.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return storage.WrapQueryError("create meeting "+m.ID, err)
	}
	return nil
}

// Get returns the meeting by id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Meeting, error) {
	m, err := scanMeeting(s.db.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.WrapQueryError("get meeting "+id, err)
	}
	return m, nil
}

// Update writes m if the version matches, then bumps the version.
func (s *PostgresStore) Update(ctx context.Context, m *Meeting) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE meetings SET
			status = $2, slot_start = $3, slot_end = $4,
			venue = NULLIF($5,''), updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $6`,
		m.ID, string(m.Status), m.Slot.Start, m.Slot.End, m.Venue, m.Version,
	)
	if err != nil {
		return storage.WrapQueryError("update meeting "+m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.Get(ctx, m.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	m.Version++
	return nil
}

// ActiveBetween returns the active meeting for the unordered pair.
func (s *PostgresStore) ActiveBetween(ctx context.Context, a, b string) (*Meeting, error) {
	m, err := scanMeeting(s.db.QueryRow(ctx, `
		SELECT `+meetingColumns+` FROM meetings
		WHERE status IN ('requested','scheduled')
		  AND least(requester_id, target_id) = least($1::text, $2::text)
		  AND greatest(requester_id, target_id) = greatest($1::text, $2::text)
		LIMIT 1`, a, b))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.WrapQueryError("active meeting "+a+"/"+b, err)
	}
	return m, nil
}

// ScheduledFor returns all scheduled meetings involving actorID.
func (s *PostgresStore) ScheduledFor(ctx context.Context, actorID string) ([]*Meeting, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+meetingColumns+` FROM meetings
		WHERE status = 'scheduled' AND (requester_id = $1 OR target_id = $1)
		ORDER BY id`, actorID)
	if err != nil {
		return nil, storage.WrapQueryError("scheduled for "+actorID, err)
	}
	defer rows.Close()

	var out []*Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, storage.WrapQueryError("scan meeting row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapQueryError("scheduled for "+actorID, err)
	}
	return out, nil
}

// ByIdempotencyKey returns the meeting created with key, or ErrNotFound.
func (s *PostgresStore) ByIdempotencyKey(ctx context.Context, key string) (*Meeting, error) {
	m, err := scanMeeting(s.db.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.WrapQueryError("meeting by idempotency key", err)
	}
	return m, nil
}
