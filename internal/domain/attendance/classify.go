package attendance

import (
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
)

// Classification is the read-time label reports use. It is never stored.
type Classification string

const (
	ClassPresent     Classification = "present"
	ClassPreviousDay Classification = "previous_day" // forgot to check out on an earlier day
	ClassAbsent      Classification = "absent"
)

// Classify labels rec as seen on today (any instant of the reporting day).
// A nil record is absent. An open session that started before today is
// previous_day no matter what the record's status says.
func Classify(rec *Record, today time.Time, loc *time.Location) Classification {
	if rec == nil {
		return ClassAbsent
	}

	day := clock.DayStart(today, loc)
	if open := rec.OpenSession(); open != nil && clock.DayStart(open.CheckIn, loc).Before(day) {
		return ClassPreviousDay
	}

	if rec.Origin == OriginManual {
		if rec.Status == StatusAbsent {
			return ClassAbsent
		}
		return ClassPresent
	}

	if len(rec.WorkSessions) > 0 {
		return ClassPresent
	}
	return ClassAbsent
}

// IsForgottenCheckout reports whether rec still has a session open that was
// started on a day before today.
func IsForgottenCheckout(rec *Record, today time.Time, loc *time.Location) bool {
	return rec != nil && Classify(rec, today, loc) == ClassPreviousDay
}
