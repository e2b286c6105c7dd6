package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"transcript-studio/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const foreignKeyViolation = "23503"

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// ConnString renders the pgx connection string, preferring an explicit DSN.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s timezone=UTC",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode,
	)
}

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres opens the pool, checks connectivity and applies the schema.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Postgres{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that a pooled connection can reach the server.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PoolStats reports connection pool usage.
func (s *Postgres) PoolStats() map[string]int32 {
	stat := s.pool.Stat()
	return map[string]int32{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}

const projectColumns = `id, source_ref, title, thumbnail_url, duration, status, media_path, created_at, updated_at`

// Create inserts a project, assigning id and timestamps when absent.
func (s *Postgres) Create(ctx context.Context, p domain.Project) (domain.Project, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Status == "" {
		p.Status = domain.ProjectStatusCreated
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := validateProject(p); err != nil {
		return domain.Project{}, err
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO projects (`+projectColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, p.ID, p.SourceRef, p.Title, p.ThumbnailURL, p.Duration, string(p.Status), p.MediaPath, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Project{}, classify("create project", err)
	}
	return p, nil
}

// Get returns one project.
func (s *Postgres) Get(ctx context.Context, id string) (domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, classify("get project "+id, err)
	}
	return p, nil
}

// List returns all projects, newest first.
func (s *Postgres) List(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classify("list projects", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, classify("scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list projects", err)
	}
	return out, nil
}

// Update locks the row, applies fn to a copy and writes it back in one transaction.
func (s *Postgres) Update(ctx context.Context, id string, fn func(*domain.Project) error) (domain.Project, error) {
	var out domain.Project
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id)
		current, err := scanProject(row)
		if err != nil {
			return classify("get project "+id, err)
		}

		next := current
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = s.now()
		if err := validateProject(next); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
            UPDATE projects
            SET source_ref = $2, title = $3, thumbnail_url = $4, duration = $5,
                status = $6, media_path = $7, updated_at = $8
            WHERE id = $1
        `, next.ID, next.SourceRef, next.Title, next.ThumbnailURL, next.Duration, string(next.Status), next.MediaPath, next.UpdatedAt)
		if err != nil {
			return classify("update project "+id, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// Delete removes a project; transcripts go with it through the foreign key.
func (s *Postgres) Delete(ctx context.Context, id string) (domain.Project, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM projects WHERE id = $1 RETURNING `+projectColumns, id)
	p, err := scanProject(row)
	if err != nil {
		return domain.Project{}, classify("delete project "+id, err)
	}
	return p, nil
}

const transcriptColumns = `id, project_id, language, language_confidence, segments, created_at`

// SaveTranscript inserts a transcript for an existing project.
func (s *Postgres) SaveTranscript(ctx context.Context, t domain.Transcript) (domain.Transcript, error) {
	if err := validateTranscript(t); err != nil {
		return domain.Transcript{}, err
	}
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.Segments == nil {
		t.Segments = []domain.Segment{}
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO transcripts (`+transcriptColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, t.ID, t.ProjectID, t.Language, t.LanguageConfidence, t.Segments, t.CreatedAt)
	if err != nil {
		return domain.Transcript{}, classify("save transcript", err)
	}
	return t.Clone(), nil
}

// LatestTranscript returns the newest transcript of a project.
func (s *Postgres) LatestTranscript(ctx context.Context, projectID string) (domain.Transcript, error) {
	row := s.pool.QueryRow(ctx, latestTranscriptSQL, projectID)
	t, err := scanTranscript(row)
	if err != nil {
		return domain.Transcript{}, classify("latest transcript of "+projectID, err)
	}
	return t, nil
}

const latestTranscriptSQL = `
    SELECT ` + transcriptColumns + `
    FROM transcripts
    WHERE project_id = $1
    ORDER BY created_at DESC, seq DESC
    LIMIT 1`

// UpdateTranscript rewrites the latest transcript of a project under a row lock.
func (s *Postgres) UpdateTranscript(ctx context.Context, projectID string, fn func(*domain.Transcript) error) (domain.Transcript, error) {
	var out domain.Transcript
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanTranscript(tx.QueryRow(ctx, latestTranscriptSQL+` FOR UPDATE`, projectID))
		if err != nil {
			return classify("latest transcript of "+projectID, err)
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.ProjectID = current.ProjectID
		next.CreatedAt = current.CreatedAt
		if err := validateTranscript(next); err != nil {
			return err
		}
		if next.Segments == nil {
			next.Segments = []domain.Segment{}
		}

		_, err = tx.Exec(ctx, `
            UPDATE transcripts
            SET language = $2, language_confidence = $3, segments = $4
            WHERE id = $1
        `, next.ID, next.Language, next.LanguageConfidence, next.Segments)
		if err != nil {
			return classify("update transcript "+next.ID, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Transcript{}, err
	}
	return out, nil
}

func (s *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	var status string
	err := row.Scan(
		&p.ID,
		&p.SourceRef,
		&p.Title,
		&p.ThumbnailURL,
		&p.Duration,
		&status,
		&p.MediaPath,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status, err = domain.ParseProjectStatus(status); err != nil {
		return domain.Project{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanTranscript(row pgx.Row) (domain.Transcript, error) {
	var t domain.Transcript
	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Language,
		&t.LanguageConfidence,
		&t.Segments,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.Transcript{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s: %s", domain.ErrNotFound, op, pgErr.Detail)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
