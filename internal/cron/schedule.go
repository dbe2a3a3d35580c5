package cron

import "context"

// Job is one unit of maintenance work the worker runs per cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule is the ordered set of maintenance jobs for a cycle. Order is
// load-bearing: the retention purge must run before the dead-letter replay so
// a row replayed into the outbox is never purged within the same cycle.
type Schedule struct {
	jobs []Job
}

// NewSchedule builds a schedule from the provided jobs, skipping nils.
func NewSchedule(jobs ...Job) *Schedule {
	schedule := &Schedule{}
	for _, job := range jobs {
		schedule.Add(job)
	}
	return schedule
}

// Add appends a job to the end of the cycle.
func (s *Schedule) Add(job Job) {
	if job == nil {
		return
	}
	s.jobs = append(s.jobs, job)
}

// Jobs returns a copy of the cycle order.
func (s *Schedule) Jobs() []Job {
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	return jobs
}
