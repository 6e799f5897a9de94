package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/proctor-go/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS proctor_reports (
	session_id   TEXT        NOT NULL,
	candidate_id TEXT        NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	final        BOOLEAN     NOT NULL DEFAULT FALSE,
	body         JSONB       NOT NULL
);
CREATE TABLE IF NOT EXISTS proctor_errors (
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processor  TEXT        NOT NULL,
	body       JSONB       NOT NULL
);
CREATE TABLE IF NOT EXISTS proctor_stats (
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	kind       TEXT        NOT NULL,
	body       JSONB       NOT NULL
);`

type postgresService struct {
	// pgx.Conn is not safe for concurrent use
	mu      sync.Mutex
	conn    *pgx.Conn
	timeout time.Duration
}

// NewPostgres connects to dsn and makes sure the proctor tables exist.
func NewPostgres(ctx context.Context, dsn string) (IService, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, xerrors.Errorf("connecting to postgres: %w", err)
	}

	if _, err := conn.Exec(ctx, schema); err != nil {
		conn.Close(ctx)
		return nil, xerrors.Errorf("creating proctor tables: %w", err)
	}

	return &postgresService{conn: conn, timeout: 5 * time.Second}, nil
}

func (svc *postgresService) exec(sql string, args ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), svc.timeout)
	defer cancel()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, err := svc.conn.Exec(ctx, sql, args...)
	return err
}

func (svc *postgresService) StoreReport(report model.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return svc.exec(`
		INSERT INTO proctor_reports (session_id, candidate_id, submitted_at, final, body)
		VALUES ($1, $2, $3, $4, $5)
	`, report.SessionID, report.Candidate.ID, report.SubmittedAt, report.Final, body)
}

func (svc *postgresService) RetrieveReports(sessionID string) ([]model.Report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), svc.timeout)
	defer cancel()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	rows, err := svc.conn.Query(ctx, `
		SELECT body FROM proctor_reports
		WHERE $1 = '' OR session_id = $1
		ORDER BY submitted_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r model.Report
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (svc *postgresService) NewError(err interface{}) error {
	rec := toErrorRecord(err, time.Now().Unix())
	body, mErr := json.Marshal(rec)
	if mErr != nil {
		return mErr
	}
	return svc.exec(`INSERT INTO proctor_errors (processor, body) VALUES ($1, $2)`, rec.Processor, body)
}

func (svc *postgresService) newStats(kind string, stats interface{}) error {
	body, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return svc.exec(`INSERT INTO proctor_stats (kind, body) VALUES ($1, $2)`, kind, body)
}

func (svc *postgresService) NewSessionStats(stats model.SessionStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("session", stats)
}

func (svc *postgresService) NewFramerStats(stats model.FramerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("framer", stats)
}

func (svc *postgresService) NewListenerStats(stats model.ListenerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("listener", stats)
}

func (svc *postgresService) NewStreamerStats(stats model.StreamerStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("streamer", stats)
}

func (svc *postgresService) NewAlerterStats(stats model.AlerterStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("alerter", stats)
}

func (svc *postgresService) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), svc.timeout)
	defer cancel()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.conn.Close(ctx)
}
