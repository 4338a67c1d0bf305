package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

// PostgresDirectory stores attendee profiles in PostgreSQL.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory creates a directory over an existing connection pool.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Get returns the attendee for actorID, or ErrNotFound.
func (d *PostgresDirectory) Get(ctx context.Context, actorID string) (*Attendee, error) {
	row := d.db.QueryRow(ctx, `
		SELECT actor_id, goals, interests, COALESCE(company,''), COALESCE(role,'')
		FROM attendees WHERE actor_id = $1`, actorID)

	var a Attendee
	if err := row.Scan(&a.ActorID, &a.Goals, &a.Interests, &a.Company, &a.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storage.WrapQueryError("get attendee "+actorID, err)
	}
	return &a, nil
}

// Upsert creates or replaces an attendee profile.
func (d *PostgresDirectory) Upsert(ctx context.Context, a *Attendee) error {
	_, err := d.db.Exec(ctx, `
		INSERT INTO attendees (actor_id, goals, interests, company, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_id) DO UPDATE SET
			goals = EXCLUDED.goals,
			interests = EXCLUDED.interests,
			company = EXCLUDED.company,
			role = EXCLUDED.role`,
		a.ActorID, a.Goals, a.Interests, a.Company, a.Role,
	)
	if err != nil {
		return storage.WrapQueryError("upsert attendee "+a.ActorID, err)
	}
	return nil
}

// List returns all attendees ordered by actor id.
func (d *PostgresDirectory) List(ctx context.Context) ([]*Attendee, error) {
	rows, err := d.db.Query(ctx, `
		SELECT actor_id, goals, interests, COALESCE(company,''), COALESCE(role,'')
		FROM attendees ORDER BY actor_id`)
	if err != nil {
		return nil, storage.WrapQueryError("list attendees", err)
	}
	defer rows.Close()

	var out []*Attendee
	for rows.Next() {
		var a Attendee
		if err := rows.Scan(&a.ActorID, &a.Goals, &a.Interests, &a.Company, &a.Role); err != nil {
			return nil, storage.WrapQueryError("scan attendee row", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapQueryError("list attendees", err)
	}
	return out, nil
}
