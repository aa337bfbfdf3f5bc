package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/sse"
)

const JobFlagForgottenCheckouts = "flag_forgotten_checkouts"

// ForgotCheckoutNotice is published to the employee's stream.
type ForgotCheckoutNotice struct {
	AttendanceID string    `json:"attendance_id"`
	Date         string    `json:"date"`
	CheckIn      time.Time `json:"check_in"`
}

// AttendanceJobs holds the attendance maintenance jobs. They only read
// records; a forgotten checkout is reported, never closed.
type AttendanceJobs struct {
	attendanceRepo attendance.AttendanceRepository
	publisher      sse.Publisher
	clock          clock.Clock
	location       *time.Location
	logger         *slog.Logger
}

func NewAttendanceJobs(
	attendanceRepo attendance.AttendanceRepository,
	publisher sse.Publisher,
	clk clock.Clock,
	location *time.Location,
	logger *slog.Logger,
) *AttendanceJobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceJobs{
		attendanceRepo: attendanceRepo,
		publisher:      publisher,
		clock:          clk,
		location:       location,
		logger:         logger,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler, interval time.Duration) {
	scheduler.AddJob(JobFlagForgottenCheckouts, interval, j.FlagForgottenCheckouts)
}

// FlagForgottenCheckouts finds sessions opened on an earlier day that are
// still open and notifies their owners.
func (j *AttendanceJobs) FlagForgottenCheckouts(ctx context.Context) error {
	_, err := j.flagForgottenCheckouts(ctx)
	return err
}

func (j *AttendanceJobs) flagForgottenCheckouts(ctx context.Context) (int, error) {
	now := j.clock.Now()
	today := clock.DayStart(now, j.location)

	records, err := j.attendanceRepo.ListOpenBefore(ctx, today, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list open attendances: %w", err)
	}

	flagged := 0
	for i := range records {
		rec := &records[i]
		if !attendance.IsForgottenCheckout(rec, now, j.location) {
			continue
		}
		open := rec.OpenSession()

		j.logger.Warn("Cron: forgotten checkout",
			"attendance_id", rec.ID,
			"employee_id", rec.EmployeeID,
			"date", rec.Date.In(j.location).Format("2006-01-02"),
			"check_in", open.CheckIn,
		)

		if j.publisher != nil {
			j.publisher.Publish(rec.EmployeeID, attendance.EventForgotCheckout, ForgotCheckoutNotice{
				AttendanceID: rec.ID,
				Date:         rec.Date.In(j.location).Format("2006-01-02"),
				CheckIn:      open.CheckIn,
			})
		}
		flagged++
	}

	if flagged > 0 {
		j.logger.Info("Cron: flagged forgotten checkouts", "count", flagged)
	}
	return flagged, nil
}
