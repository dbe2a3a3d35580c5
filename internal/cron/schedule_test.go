package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestSchedulePreservesCycleOrder(t *testing.T) {
	schedule := NewSchedule()
	purge := &stubJob{name: "purge"}
	replay := &stubJob{name: "replay"}
	schedule.Add(purge)
	schedule.Add(nil)
	schedule.Add(replay)
	jobs := schedule.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != purge || jobs[1] != replay {
		t.Fatalf("jobs returned out of order")
	}
	// ensure caller cannot mutate internal slice
	jobs[0] = nil
	if schedule.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}
