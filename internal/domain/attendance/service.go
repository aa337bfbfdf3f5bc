package attendance

import (
	"context"
)

// AttendanceService defines business logic for attendance operations
type AttendanceService interface {
	// GetMyStatus returns today's record for the caller. When nothing has been
	// recorded yet the record is an unsaved not_checked_in one.
	GetMyStatus(ctx context.Context) (MyStatusResponse, error)

	// Transition applies cmd to the caller's record for today and returns the
	// persisted result.
	Transition(ctx context.Context, cmd Command, reason string) (AttendanceResponse, error)

	CheckIn(ctx context.Context) (AttendanceResponse, error)
	CheckOut(ctx context.Context) (AttendanceResponse, error)
	StartLunch(ctx context.Context) (AttendanceResponse, error)
	EndLunch(ctx context.Context) (AttendanceResponse, error)
	StartBreak(ctx context.Context, req StartBreakRequest) (AttendanceResponse, error)
	EndBreak(ctx context.Context) (AttendanceResponse, error)

	// GetMyHistory retrieves the caller's recent records, newest first
	GetMyHistory(ctx context.Context, filter MyHistoryFilter) ([]AttendanceResponse, error)

	// ListAttendance retrieves attendance records with filters (admin/hr)
	ListAttendance(ctx context.Context, filter AttendanceFilter) (ListAttendanceResponse, error)

	GetAttendance(ctx context.Context, id string) (AttendanceResponse, error)

	// MarkAttendance creates or overwrites a record outside the state machine (admin/hr)
	MarkAttendance(ctx context.Context, req MarkAttendanceRequest) (AttendanceResponse, error)

	// UpdateAttendance fixes an existing record (admin/hr)
	UpdateAttendance(ctx context.Context, req UpdateAttendanceRequest) (AttendanceResponse, error)

	DeleteAttendance(ctx context.Context, id string) error

	// GetSummary counts active employees by classification for one day
	GetSummary(ctx context.Context, req SummaryRequest) (SummaryResponse, error)

	// GenerateStreamToken issues a short-lived token for the live stream
	GenerateStreamToken(ctx context.Context) (StreamTokenResponse, error)
}
