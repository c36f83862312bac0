package domain

import (
	"context"
	"encoding/json"
)

// JobHandler executes a claimed job and returns its results. A returned
// error marks the job as ERROR.
type JobHandler func(ctx context.Context, job *Job) (json.RawMessage, error)
