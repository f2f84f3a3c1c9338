package service

import (
	"time"

	"github.com/noah-isme/library-lending-api/internal/models"
	"github.com/noah-isme/library-lending-api/pkg/config"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

// PolicyResolver computes effective lending policies. It performs no I/O.
type PolicyResolver struct {
	defaults models.LendingPolicy
	limit    int
}

// NewPolicyResolver builds a resolver whose fallback policy comes from configuration.
func NewPolicyResolver(cfg config.LendingConfig) *PolicyResolver {
	loanDays := cfg.DefaultLoanDays
	if loanDays <= 0 {
		loanDays = 14
	}
	extensionDays := cfg.DefaultExtensionDays
	if extensionDays <= 0 {
		extensionDays = 7
	}
	limit := cfg.DefaultBorrowingLimit
	if limit <= 0 {
		limit = 2
	}
	return &PolicyResolver{
		defaults: models.LendingPolicy{
			LoanDuration:      loanDays,
			ExtensionAllowed:  false,
			ExtensionLimit:    0,
			ExtensionDuration: extensionDays,
			Source:            models.PolicySourceDefault,
		},
		limit: limit,
	}
}

// Resolve applies book rights, then a fully populated category, then the system default.
// Book rights replace the category as a whole; fields are never merged.
func (r *PolicyResolver) Resolve(rights *models.BookLendingRights, category *models.Category) (models.LendingPolicy, error) {
	if rights != nil {
		if rights.LoanDuration < 1 || rights.ExtensionLimit < 0 || rights.ExtensionDuration < 0 {
			return models.LendingPolicy{}, appErrors.WithDetails(appErrors.ErrMalformedPolicy, map[string]interface{}{
				"source": models.PolicySourceBook,
				"bookId": rights.BookID,
			})
		}
		return normalisePolicy(models.LendingPolicy{
			LoanDuration:      rights.LoanDuration,
			ExtensionAllowed:  rights.LoanExtensionAllowed,
			ExtensionLimit:    rights.ExtensionLimit,
			ExtensionDuration: rights.ExtensionDuration,
			Source:            models.PolicySourceBook,
		}), nil
	}

	if category.HasPolicy() {
		if *category.LoanDuration < 1 || *category.ExtensionLimit < 0 || *category.ExtensionDuration < 0 {
			return models.LendingPolicy{}, appErrors.WithDetails(appErrors.ErrMalformedPolicy, map[string]interface{}{
				"source":     models.PolicySourceCategory,
				"categoryId": category.ID,
			})
		}
		return normalisePolicy(models.LendingPolicy{
			LoanDuration:      *category.LoanDuration,
			ExtensionAllowed:  *category.LoanExtensionAllowed,
			ExtensionLimit:    *category.ExtensionLimit,
			ExtensionDuration: *category.ExtensionDuration,
			Source:            models.PolicySourceCategory,
		}), nil
	}

	return r.defaults, nil
}

// BorrowingLimit returns the category limit or the system default when unset.
func (r *PolicyResolver) BorrowingLimit(category *models.Category) (int, error) {
	if category == nil || category.BorrowingLimit == nil {
		return r.limit, nil
	}
	if *category.BorrowingLimit < 0 {
		return 0, appErrors.WithDetails(appErrors.ErrMalformedPolicy, map[string]interface{}{
			"source":     models.PolicySourceCategory,
			"categoryId": category.ID,
			"field":      "borrowingLimit",
		})
	}
	return *category.BorrowingLimit, nil
}

// DueDate is the loan due date for a borrowing starting at now.
func (r *PolicyResolver) DueDate(now time.Time, policy models.LendingPolicy) time.Time {
	return now.UTC().AddDate(0, 0, policy.LoanDuration)
}

// PickupDeadline is the deadline of a reservation becoming ready at now.
// The extension window doubles as the pickup window and is at least one day.
func (r *PolicyResolver) PickupDeadline(now time.Time, policy models.LendingPolicy) time.Time {
	days := policy.ExtensionDuration
	if days < 1 {
		days = 1
	}
	return now.UTC().AddDate(0, 0, days)
}

// PickupWindow is the number of days PickupDeadline adds.
func (r *PolicyResolver) PickupWindow(policy models.LendingPolicy) int {
	if policy.ExtensionDuration < 1 {
		return 1
	}
	return policy.ExtensionDuration
}

// RenewedDueDate checks the extension budget of a borrowing and returns its next due date.
// Extensions compound on the current due date.
func (r *PolicyResolver) RenewedDueDate(policy models.LendingPolicy, borrowing models.Borrowing) (time.Time, error) {
	details := map[string]interface{}{
		"borrowingId":    borrowing.ID,
		"extensionCount": borrowing.ExtensionCount,
		"extensionLimit": policy.ExtensionLimit,
		"source":         policy.Source,
	}
	if !policy.ExtensionAllowed {
		return time.Time{}, appErrors.WithDetails(appErrors.ErrExtensionNotAllowed, details)
	}
	if borrowing.ExtensionCount >= policy.ExtensionLimit {
		return time.Time{}, appErrors.WithDetails(appErrors.ErrExtensionLimitExceeded, details)
	}
	return borrowing.DueDate.UTC().AddDate(0, 0, policy.ExtensionDuration), nil
}

func normalisePolicy(policy models.LendingPolicy) models.LendingPolicy {
	if !policy.ExtensionAllowed {
		policy.ExtensionLimit = 0
	}
	return policy
}
