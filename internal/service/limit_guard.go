package service

import (
	"time"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

// EvaluateLimit decides whether a student may take one more borrowing.
// A ban in force refuses regardless of the count.
func EvaluateLimit(student models.Student, current, limit int, now time.Time) models.LimitStatus {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	status := models.LimitStatus{
		Allowed:   current < limit,
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
	}
	switch {
	case student.IsBanned(now):
		status.Allowed = false
		status.Reason = models.LimitReasonBanned
	case !status.Allowed:
		status.Reason = models.LimitReasonReached
	}
	return status
}

// LimitError converts a refusing status into the matching typed error, or nil when allowed.
func LimitError(student models.Student, status models.LimitStatus) error {
	if status.Allowed {
		return nil
	}
	if status.Reason == models.LimitReasonBanned {
		return banError(student)
	}
	return appErrors.WithDetails(appErrors.ErrLimitReached, map[string]interface{}{
		"studentId": student.ID,
		"current":   status.Current,
		"limit":     status.Limit,
		"remaining": status.Remaining,
	})
}

func banError(student models.Student) error {
	return appErrors.WithDetails(appErrors.ErrBanned, map[string]interface{}{
		"studentId":   student.ID,
		"bannedUntil": student.BannedUntil,
	})
}
