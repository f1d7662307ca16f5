package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/pkg/jobs"
)

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditService persists audit trail records through a background queue so
// workflow operations never block on the audit write. A failed write is
// retried by the queue and at worst logged, never surfaced to the caller.
type AuditService struct {
	repo   auditLogWriter
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the service and its worker queue. Start must be
// called before records are accepted.
func NewAuditService(repo auditLogWriter, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{Workers: 1, BufferSize: 64, Logger: logger})
	return s
}

// Start launches the background writer.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains and stops the background writer.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an audit entry. Falls back to a synchronous write when the
// queue is not running (tests, shutdown).
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) {
	if log == nil {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: log.ID, Type: log.Action, Payload: log}); err != nil {
		if writeErr := s.repo.CreateAuditLog(ctx, log); writeErr != nil {
			s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(writeErr))
		}
	}
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		s.logger.Warn("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.CreateAuditLog(ctx, log)
}
