package services

import (
	"github.com/sjperalta/pharmavault-api/internal/jobs"
)

type JobService struct {
	worker *jobs.Worker
}

func NewJobService(worker *jobs.Worker) *JobService {
	return &JobService{
		worker: worker,
	}
}

// GetStatus reports worker counters; without a worker everything is zero
func (s *JobService) GetStatus() jobs.WorkerStats {
	if s.worker == nil {
		return jobs.WorkerStats{}
	}
	return s.worker.GetStats()
}
