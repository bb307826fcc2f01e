package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatbot/internal/models"
	"chatbot/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"goa.design/clue/log"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

// uniqueViolation is the PostgreSQL error code of a unique constraint failure.
const uniqueViolation = "23505"

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pool on databaseURL and checks it is reachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// --- User Methods ---

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, email, hashed_password, created_at, updated_at
FROM users
WHERE email = $1;
`

// GetUserByEmail retrieves a user by their email address.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx, getUserByEmail, email).Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "[PostgresStore] GetUserByEmail failed"})
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}
	return user, nil
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, hashed_password)
VALUES ($1, $2)
RETURNING id, email, hashed_password, created_at, updated_at;
`

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, email, hashedPassword string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx, createUser, email, hashedPassword).Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrConflict
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "[PostgresStore] CreateUser failed"})
		return nil, fmt.Errorf("database error creating user: %w", err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "[PostgresStore] user created"}, log.KV{K: "account", V: user.ID})
	return user, nil
}

// --- Thread Methods ---

const createThread = `-- name: CreateThread :one
INSERT INTO threads (id, account, title)
VALUES ($1, $2, $3)
RETURNING id, account, title, created_at;
`

func (s *PostgresStore) CreateThread(ctx context.Context, account int64, title string) (*models.Thread, error) {
	var t models.Thread
	err := s.db.QueryRow(ctx, createThread, uuid.New(), account, title).Scan(
		&t.ID,
		&t.Account,
		&t.Title,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating thread: %w", err)
	}
	return &t, nil
}

const getThread = `-- name: GetThread :one
SELECT id, account, title, created_at
FROM threads
WHERE id = $1 AND account = $2 AND deleted_at IS NULL;
`

func (s *PostgresStore) GetThread(ctx context.Context, id uuid.UUID, account int64) (*models.Thread, error) {
	var t models.Thread
	err := s.db.QueryRow(ctx, getThread, id, account).Scan(
		&t.ID,
		&t.Account,
		&t.Title,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning thread: %w", err)
	}
	return &t, nil
}

const listThreads = `-- name: ListThreads :many
SELECT id, account, title, created_at
FROM threads
WHERE account = $1 AND deleted_at IS NULL
ORDER BY created_at ASC;
`

func (s *PostgresStore) ListThreads(ctx context.Context, account int64) ([]models.Thread, error) {
	rows, err := s.db.Query(ctx, listThreads, account)
	if err != nil {
		return nil, fmt.Errorf("error querying threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ID, &t.Account, &t.Title, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning thread row: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread rows: %w", err)
	}
	return threads, nil
}

const softDeleteThread = `-- name: SoftDeleteThread :exec
UPDATE threads
SET deleted_at = NOW()
WHERE id = $1 AND account = $2 AND deleted_at IS NULL;
`

const deleteCheckpoints = `-- name: DeleteCheckpoints :exec
DELETE FROM checkpoints
WHERE thread_id = $1;
`

// DeleteThread tombstones the thread and removes its checkpoints in one
// transaction.
func (s *PostgresStore) DeleteThread(ctx context.Context, id uuid.UUID, account int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, softDeleteThread, id, account)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.Exec(ctx, deleteCheckpoints, id); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit thread deletion: %w", err)
	}
	log.Print(ctx, log.KV{K: "msg", V: "[PostgresStore] thread deleted"}, log.KV{K: "thread", V: id})
	return nil
}

// --- Message Pair Methods ---

const createMessagePair = `-- name: CreateMessagePair :exec
INSERT INTO message_pairs (
    id, thread_id, user_message, assistant_message, error_message,
    generated_queries, chart_data, chart_metadata, model_uri, events, created_at
)
SELECT $1::uuid, t.id, $3::text, $4::text, $5::text, $6::jsonb, $7::jsonb, $8::jsonb, $9::text, $10::jsonb,
    COALESCE($11::timestamptz, NOW())
FROM threads t
WHERE t.id = $2 AND t.deleted_at IS NULL;
`

func (s *PostgresStore) CreateMessagePair(ctx context.Context, threadID uuid.UUID, p *models.MessagePair) error {
	if err := p.Validate(); err != nil {
		return err
	}
	queries, err := nullableJSON(p.GeneratedQueries == nil, p.GeneratedQueries)
	if err != nil {
		return err
	}
	chartData, err := nullableJSON(p.ChartData == nil, p.ChartData)
	if err != nil {
		return err
	}
	chartMeta, err := nullableJSON(p.ChartMetadata == nil, p.ChartMetadata)
	if err != nil {
		return err
	}
	events := p.Events
	if events == nil {
		events = []models.StreamEvent{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	tag, err := s.db.Exec(ctx, createMessagePair,
		p.ID,
		threadID,
		p.UserMessage,
		p.AssistantMessage, // pgx handles *string to NULL automatically
		p.ErrorMessage,
		queries,
		chartData,
		chartMeta,
		p.ModelURI,
		eventsJSON,
		p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to insert message pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const messagePairColumns = `mp.id, mp.user_message, mp.assistant_message, mp.error_message,
    mp.generated_queries, mp.chart_data, mp.chart_metadata, mp.model_uri, mp.events, mp.created_at`

var listMessagePairs = `-- name: ListMessagePairs :many
SELECT ` + messagePairColumns + `
FROM message_pairs mp
WHERE mp.thread_id = $1
ORDER BY mp.created_at ASC;
`

func (s *PostgresStore) ListMessagePairs(ctx context.Context, threadID uuid.UUID) ([]models.MessagePair, error) {
	rows, err := s.db.Query(ctx, listMessagePairs, threadID)
	if err != nil {
		return nil, fmt.Errorf("error querying message pairs: %w", err)
	}
	defer rows.Close()

	pairs := []models.MessagePair{}
	for rows.Next() {
		p, err := scanMessagePair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message pair rows: %w", err)
	}
	return pairs, nil
}

var getMessagePair = `-- name: GetMessagePair :one
SELECT ` + messagePairColumns + `
FROM message_pairs mp
JOIN threads t ON t.id = mp.thread_id
WHERE mp.id = $1 AND t.account = $2 AND t.deleted_at IS NULL;
`

func (s *PostgresStore) GetMessagePair(ctx context.Context, id uuid.UUID, account int64) (*models.MessagePair, error) {
	p, err := scanMessagePair(s.db.QueryRow(ctx, getMessagePair, id, account))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanMessagePair(row pgx.Row) (*models.MessagePair, error) {
	var p models.MessagePair
	var queries, chartData, chartMeta, events []byte
	if err := row.Scan(
		&p.ID,
		&p.UserMessage,
		&p.AssistantMessage,
		&p.ErrorMessage,
		&queries,
		&chartData,
		&chartMeta,
		&p.ModelURI,
		&events,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning message pair: %w", err)
	}
	if queries != nil {
		if err := json.Unmarshal(queries, &p.GeneratedQueries); err != nil {
			return nil, fmt.Errorf("failed to parse generated queries: %w", err)
		}
	}
	if chartData != nil {
		p.ChartData = &models.ChartData{}
		if err := json.Unmarshal(chartData, p.ChartData); err != nil {
			return nil, fmt.Errorf("failed to parse chart data: %w", err)
		}
	}
	if chartMeta != nil {
		p.ChartMetadata = &models.ChartMetadata{}
		if err := json.Unmarshal(chartMeta, p.ChartMetadata); err != nil {
			return nil, fmt.Errorf("failed to parse chart metadata: %w", err)
		}
	}
	if err := json.Unmarshal(events, &p.Events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	return &p, nil
}

// nullableJSON marshals v, or returns nil so the column is stored as NULL.
func nullableJSON(isNil bool, v any) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal column: %w", err)
	}
	return b, nil
}

// --- Checkpoint Methods ---

const addCheckpoint = `-- name: AddCheckpoint :exec
INSERT INTO checkpoints (thread_id, run_id, user_message, answer)
SELECT t.id, $2::uuid, $3::text, $4::text
FROM threads t
WHERE t.id = $1 AND t.deleted_at IS NULL;
`

func (s *PostgresStore) AddCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	tag, err := s.db.Exec(ctx, addCheckpoint, cp.ThreadID, cp.RunID, cp.UserMessage, cp.Answer)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const listCheckpoints = `-- name: ListCheckpoints :many
SELECT thread_id, run_id, user_message, answer, created_at
FROM checkpoints
WHERE thread_id = $1
ORDER BY created_at ASC;
`

func (s *PostgresStore) ListCheckpoints(ctx context.Context, threadID uuid.UUID) ([]models.Checkpoint, error) {
	rows, err := s.db.Query(ctx, listCheckpoints, threadID)
	if err != nil {
		return nil, fmt.Errorf("error querying checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.ThreadID, &cp.RunID, &cp.UserMessage, &cp.Answer, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// --- Feedback Methods ---

const upsertFeedback = `-- name: UpsertFeedback :exec
INSERT INTO feedbacks (message_pair_id, account, rating, comment)
VALUES ($1, $2, $3, $4)
ON CONFLICT (message_pair_id) DO UPDATE
SET account = EXCLUDED.account, rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = NOW();
`

func (s *PostgresStore) UpsertFeedback(ctx context.Context, fb models.FeedbackRecord) error {
	if _, err := s.db.Exec(ctx, upsertFeedback, fb.MessagePairID, fb.Account, int16(fb.Rating), fb.Comment); err != nil {
		return fmt.Errorf("failed to upsert feedback: %w", err)
	}
	return nil
}

const getFeedback = `-- name: GetFeedback :one
SELECT message_pair_id, account, rating, comment, updated_at
FROM feedbacks
WHERE message_pair_id = $1;
`

func (s *PostgresStore) GetFeedback(ctx context.Context, pairID uuid.UUID) (*models.FeedbackRecord, error) {
	var (
		fb     models.FeedbackRecord
		rating int16
	)
	err := s.db.QueryRow(ctx, getFeedback, pairID).Scan(
		&fb.MessagePairID,
		&fb.Account,
		&rating,
		&fb.Comment,
		&fb.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning feedback: %w", err)
	}
	fb.Rating = models.Rating(rating)
	return &fb, nil
}
