package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const JobAuditRetention = "audit_retention"

// RunFunc does the work of one job and returns details worth keeping.
type RunFunc func(context.Context) (any, error)

// RunLog records the lifecycle of each run.
type RunLog interface {
	Started(ctx context.Context, jobType string) (string, error)
	Finished(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	runs   RunLog
	logger *slog.Logger
	queue  chan job
	wg     sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

// New returns a runner with a single worker. runs may be nil, in which case
// runs are only logged.
func New(runs RunLog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runs:   runs,
		logger: logger,
		queue:  make(chan job, 32),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Every enqueues run each interval until ctx is done. A non-positive
// interval disables the schedule.
func (s *Service) Every(ctx context.Context, jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, run)
			}
		}
	}()
}

// Wait blocks until the worker and every schedule have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue reports false when the queue is full and the run was dropped.
func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		s.logger.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.logger.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.runs != nil {
		id, err := s.runs.Started(ctx, j.Type)
		if err != nil {
			s.logger.Warn("job run insert failed", "jobType", j.Type, "err", err)
		}
		runID = id
	}

	started := time.Now()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	s.logger.Info("job run finished", "jobType", j.Type, "status", status, "durationMs", time.Since(started).Milliseconds())

	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			s.logger.Warn("job details marshal failed", "err", marshalErr)
			detailsJSON = []byte("{}")
		}
		if updErr := s.runs.Finished(ctx, runID, status, detailsJSON); updErr != nil {
			s.logger.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return details, err
}

// PgRunLog keeps run history in the job_runs table.
type PgRunLog struct {
	DB *pgxpool.Pool
}

func (p PgRunLog) Started(ctx context.Context, jobType string) (string, error) {
	var runID string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id::text
  `, jobType, "running").Scan(&runID)
	return runID, err
}

func (p PgRunLog) Finished(ctx context.Context, runID, status string, details []byte) error {
	_, err := p.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
