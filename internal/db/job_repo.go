package db

import (
	"context"

	"github.com/google/uuid"

	"jobtrail/internal/types"
)

// JobRepo provides data access for the jobs table. Quota enforcement only
// needs the live count of a user's active job applications: job usage is
// never a stored counter, so it survives period rollover by construction.
type JobRepo struct {
	db DBTX
}

// NewJobRepo creates a JobRepo backed by the given database connection
// (pool or transaction).
func NewJobRepo(db DBTX) *JobRepo {
	return &JobRepo{db: db}
}

// CountActive returns the number of active job applications for a user.
// Archived and soft-deleted records do not count against the job slot limit.
func (r *JobRepo) CountActive(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM jobs
		WHERE user_id = $1
		  AND status != 'archived'
		  AND deleted_at IS NULL`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active jobs", err)
	}
	return count, nil
}

// Create inserts a new job application in the initial "applied" status and
// returns its id. Slot availability is checked by the caller before insert.
func (r *JobRepo) Create(ctx context.Context, userID, company, title string) (string, error) {
	const query = `
		INSERT INTO jobs (id, user_id, company, title, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'applied', now(), now())`

	id := uuid.New().String()
	if _, err := r.db.Exec(ctx, query, id, userID, company, title); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to create job", err)
	}
	return id, nil
}
