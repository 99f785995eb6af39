package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source is the read-only view of events and memberships. Every lookup
// returns zero or more rows; no rows is not an error.
type Source interface {
	UpcomingEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	EventByID(ctx context.Context, id int64) (*Event, error)
	GoingUsers(ctx context.Context, eventID int64) ([]User, error)
	CategorySubscribers(ctx context.Context, category string) ([]User, error)
	CommunityMembers(ctx context.Context, communityID int64) ([]User, error)
}

// Store reads events and memberships from Postgres using the prepared
// statements registered by package db.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpcomingEvents returns active, non-deleted events starting in [from, to],
// ordered by start time.
func (s *Store) UpcomingEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := s.pool.Query(ctx, "upcoming_events", from, to)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventByID returns a single event regardless of its window or flags.
func (s *Store) EventByID(ctx context.Context, id int64) (*Event, error) {
	var e Event
	if err := scanEvent(s.pool.QueryRow(ctx, "event_by_id", id), &e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return &e, nil
}

// GoingUsers returns users with a going edge to the event.
func (s *Store) GoingUsers(ctx context.Context, eventID int64) ([]User, error) {
	return s.users(ctx, "event_going_users", eventID)
}

// CategorySubscribers returns users whose preference matches category exactly.
func (s *Store) CategorySubscribers(ctx context.Context, category string) ([]User, error) {
	return s.users(ctx, "category_subscribers", category)
}

// CommunityMembers returns members of the community.
func (s *Store) CommunityMembers(ctx context.Context, communityID int64) ([]User, error) {
	return s.users(ctx, "community_member_users", communityID)
}

func (s *Store) users(ctx context.Context, stmt string, arg any) ([]User, error) {
	rows, err := s.pool.Query(ctx, stmt, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.PushToken); err != nil {
			return nil, fmt.Errorf("scan %s: %w", stmt, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanEvent(row pgx.Row, e *Event) error {
	return row.Scan(
		&e.ID, &e.Name, &e.Category, &e.StartTime, &e.EndTime,
		&e.CommunityID, &e.Active, &e.Deleted,
	)
}
