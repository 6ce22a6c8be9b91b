package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tada-core/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store persists pipelines, API keys and delivery logs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func New(dbURL string) (*Store, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// --- API Key helpers ---

func GenerateAPIKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "tada_live_" + hex.EncodeToString(b)
}

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func APIKeyPrefix(key string) string {
	if len(key) < 14 {
		return key
	}
	return key[:14]
}

// --- Pipelines ---

// UpsertPipeline inserts or replaces the pipeline row. Filter, transform
// and destinations are stored as JSONB so the row round-trips exactly
// what the API accepted.
func (s *Store) UpsertPipeline(ctx context.Context, p *models.Pipeline) error {
	filterJSON, err := nullableJSON(p.Filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	transformJSON, err := nullableJSON(p.Transform)
	if err != nil {
		return fmt.Errorf("encode transform: %w", err)
	}
	destJSON, err := json.Marshal(p.Destinations)
	if err != nil {
		return fmt.Errorf("encode destinations: %w", err)
	}
	status := p.Status
	if status == "" {
		status = models.StatusActive
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO pipelines (id, name, api_key_hash, programs, filter, transform, destinations, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   programs = EXCLUDED.programs,
		   filter = EXCLUDED.filter,
		   transform = EXCLUDED.transform,
		   destinations = EXCLUDED.destinations,
		   status = EXCLUDED.status,
		   updated_at = now()
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.APIKey, p.Programs, filterJSON, transformJSON, destJSON, string(status),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *Store) GetPipeline(ctx context.Context, id string) (*models.Pipeline, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, api_key_hash, programs, filter, transform, destinations, status, created_at, updated_at
		 FROM pipelines WHERE id = $1`, id)
	return scanPipeline(row)
}

func (s *Store) ListPipelines(ctx context.Context, apiKeyHash string) ([]*models.Pipeline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, api_key_hash, programs, filter, transform, destinations, status, created_at, updated_at
		 FROM pipelines WHERE api_key_hash = $1 ORDER BY created_at DESC`, apiKeyHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPipelines(rows)
}

// ListAll returns every pipeline row regardless of status. The routing
// index carries paused and errored pipelines too; only event routing
// checks status, so the control plane keeps seeing them.
func (s *Store) ListAll(ctx context.Context) ([]*models.Pipeline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, api_key_hash, programs, filter, transform, destinations, status, created_at, updated_at
		 FROM pipelines ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPipelines(rows)
}

func (s *Store) UpdatePipelineStatus(ctx context.Context, id string, status models.PipelineStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipelines SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	return err
}

func (s *Store) DeletePipeline(ctx context.Context, id, apiKeyHash string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pipelines WHERE id = $1 AND api_key_hash = $2`, id, apiKeyHash)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row rowScanner) (*models.Pipeline, error) {
	var (
		p             models.Pipeline
		status        string
		filterJSON    []byte
		transformJSON []byte
		destJSON      []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.APIKey, &p.Programs, &filterJSON, &transformJSON, &destJSON, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PipelineStatus(status)
	if len(filterJSON) > 0 {
		p.Filter = &models.Filter{}
		if err := json.Unmarshal(filterJSON, p.Filter); err != nil {
			return nil, fmt.Errorf("decode filter for %s: %w", p.ID, err)
		}
	}
	if len(transformJSON) > 0 {
		p.Transform = &models.Transform{}
		if err := json.Unmarshal(transformJSON, p.Transform); err != nil {
			return nil, fmt.Errorf("decode transform for %s: %w", p.ID, err)
		}
	}
	if len(destJSON) > 0 {
		if err := json.Unmarshal(destJSON, &p.Destinations); err != nil {
			return nil, fmt.Errorf("decode destinations for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

type pgxRows interface {
	rowScanner
	Next() bool
	Err() error
}

func collectPipelines(rows pgxRows) ([]*models.Pipeline, error) {
	var out []*models.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableJSON(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case *models.Filter:
		if t == nil {
			return nil, nil
		}
	case *models.Transform:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// --- API Keys ---

func (s *Store) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := GenerateAPIKey()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (key_hash, key_prefix, name) VALUES ($1, $2, $3)`,
		HashAPIKey(key), APIKeyPrefix(key), name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// LookupAPIKey validates a hash against active keys and stamps last_used.
func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`UPDATE api_keys SET last_used = now()
		 WHERE key_hash = $1 AND is_active = true
		 RETURNING id`, keyHash,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, keyHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1`, keyHash)
	return err
}

// --- Delivery logs ---

func (s *Store) InsertDeliveryLog(ctx context.Context, dl *models.DeliveryLog) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO delivery_logs (pipeline_id, event_id, destination, success, error, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		dl.PipelineID, dl.EventID, dl.Destination, dl.Success, dl.Error, dl.Payload,
	).Scan(&dl.ID, &dl.CreatedAt)
}

func (s *Store) ListDeliveryLogs(ctx context.Context, pipelineID string, limit int) ([]models.DeliveryLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, pipeline_id, event_id, destination, success, error, payload, created_at
		 FROM delivery_logs WHERE pipeline_id = $1 ORDER BY created_at DESC LIMIT $2`,
		pipelineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.DeliveryLog
	for rows.Next() {
		var dl models.DeliveryLog
		if err := rows.Scan(&dl.ID, &dl.PipelineID, &dl.EventID, &dl.Destination, &dl.Success, &dl.Error, &dl.Payload, &dl.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, dl)
	}
	return logs, rows.Err()
}
