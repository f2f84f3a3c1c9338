package service

import (
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

// CopyCounts are the copy counters of one book.
type CopyCounts struct {
	Total     int `json:"totalCopies"`
	Available int `json:"availableCopies"`
}

// Valid reports whether 0 <= available <= total and total >= 1.
func (c CopyCounts) Valid() bool {
	return c.Total >= 1 && c.Available >= 0 && c.Available <= c.Total
}

// ApplyLend takes one copy off the shelf.
func ApplyLend(c CopyCounts) (CopyCounts, error) {
	if c.Available < 1 {
		return c, appErrors.WithDetails(appErrors.ErrOutOfStock, map[string]interface{}{
			"totalCopies":     c.Total,
			"availableCopies": c.Available,
		})
	}
	c.Available--
	return c, nil
}

// ApplyReturn puts one copy back, never beyond the total.
func ApplyReturn(c CopyCounts) CopyCounts {
	if c.Available < c.Total {
		c.Available++
	}
	return c
}

// ApplyAdjustment adds and removes physical copies. Removal takes from the shelf first and
// clamps at zero available; the result is rejected when fewer than one copy would remain.
func ApplyAdjustment(c CopyCounts, add, remove int) (CopyCounts, error) {
	details := map[string]interface{}{
		"totalCopies":     c.Total,
		"availableCopies": c.Available,
		"add":             add,
		"remove":          remove,
	}
	if add < 0 || remove < 0 {
		return c, appErrors.WithDetails(appErrors.ErrInvalidAdjustment, details)
	}
	removedFromShelf := remove
	if removedFromShelf > c.Available {
		removedFromShelf = c.Available
	}
	next := CopyCounts{
		Total:     c.Total + add - remove,
		Available: c.Available + add - removedFromShelf,
	}
	if !next.Valid() {
		details["resultingTotal"] = next.Total
		details["resultingAvailable"] = next.Available
		return c, appErrors.WithDetails(appErrors.ErrInvalidAdjustment, details)
	}
	return next, nil
}
