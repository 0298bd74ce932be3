package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	log       *zerolog.Logger
}

// New creates a scheduler. Jobs do not run until Start.
func New(logger *zerolog.Logger) (*Scheduler, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogAdapter{log: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, log: logger}, nil
}

// Every schedules job to run at a fixed interval. Overlapping runs are skipped.
func (s *Scheduler) Every(name string, interval time.Duration, job func()) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if job == nil {
		return fmt.Errorf("job %s: nil job function", name)
	}

	const slowThreshold = 5 * time.Second
	wrapped := func() {
		start := time.Now()
		job()
		if d := time.Since(start); d > slowThreshold {
			s.log.Warn().Str("job_name", name).Dur("duration", d).Msg("slow scheduled job")
		}
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(wrapped),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.log.Info().Str("job_name", name).Dur("interval", interval).Msg("job scheduled")
	return nil
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.log.Debug().Int("jobs", len(s.scheduler.Jobs())).Msg("scheduler started")
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

type gocronLogAdapter struct {
	log *zerolog.Logger
}

func (l *gocronLogAdapter) Debug(msg string, args ...any) {
	l.log.Debug().Fields(toFields(args)).Msg(msg)
}

func (l *gocronLogAdapter) Info(msg string, args ...any) {
	l.log.Info().Fields(toFields(args)).Msg(msg)
}

func (l *gocronLogAdapter) Warn(msg string, args ...any) {
	l.log.Warn().Fields(toFields(args)).Msg(msg)
}

func (l *gocronLogAdapter) Error(msg string, args ...any) {
	l.log.Error().Fields(toFields(args)).Msg(msg)
}

func toFields(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["value"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}
