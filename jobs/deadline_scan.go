package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// TaskDeadlineScan reports purchase requests past their vendor upload
	// deadline. Advisory only: deadlines are never auto-expired.
	TaskDeadlineScan = "procurement:deadline_scan"
)

// DeadlineScanPayload contains scan options.
type DeadlineScanPayload struct {
	Statuses []string `json:"statuses"`
}

// NewDeadlineScanTask builds a new deadline scan task.
func NewDeadlineScanTask(statuses []string) (*asynq.Task, error) {
	body, err := json.Marshal(DeadlineScanPayload{Statuses: statuses})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeadlineScan, body, asynq.Queue(QueueDefault)), nil
}

// DeadlineScanJob finds overdue requests and logs them for follow-up.
type DeadlineScanJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDeadlineScanJob constructs the job.
func NewDeadlineScanJob(pool *pgxpool.Pool, logger *slog.Logger) *DeadlineScanJob {
	return &DeadlineScanJob{pool: pool, logger: logger}
}

// Handle executes the scan.
func (j *DeadlineScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DeadlineScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	statuses := payload.Statuses
	if len(statuses) == 0 {
		statuses = []string{"VENDOR_UPLOADING"}
	}
	rows, err := j.pool.Query(ctx, `SELECT id, request_number, status, vendor_upload_deadline
	FROM purchase_requests
	WHERE status = ANY($1) AND vendor_upload_deadline < NOW()
	ORDER BY vendor_upload_deadline ASC`, statuses)
	if err != nil {
		return err
	}
	defer rows.Close()
	overdue := 0
	for rows.Next() {
		var (
			id       int64
			number   string
			status   string
			deadline any
		)
		if err := rows.Scan(&id, &number, &status, &deadline); err != nil {
			return err
		}
		overdue++
		j.logger.Warn("request past vendor upload deadline",
			slog.Int64("request_id", id),
			slog.String("request_number", number),
			slog.String("status", status))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger.Info("deadline scan complete", slog.Int("overdue", overdue))
	return nil
}
