package service

import (
	"time"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

// initialReservationStatus picks the entry state of a new reservation. A reservation waits
// behind any open one ahead of it; otherwise it may claim a copy nobody holds.
func initialReservationStatus(openAhead, freeCopies int) models.ReservationStatus {
	if openAhead == 0 && freeCopies > 0 {
		return models.ReservationStatusAwaitingPickup
	}
	return models.ReservationStatusHeld
}

func transitionDetails(r models.Reservation) map[string]interface{} {
	details := map[string]interface{}{
		"reservationId": r.ID,
		"status":        r.Status,
	}
	if r.PickupDeadline != nil {
		details["pickupDeadline"] = r.PickupDeadline
	}
	return details
}

func checkCheckout(r models.Reservation, now time.Time) error {
	if r.Status != models.ReservationStatusAwaitingPickup {
		return appErrors.WithDetails(appErrors.ErrNotAwaitingPickup, transitionDetails(r))
	}
	if r.PickupDeadline != nil && now.After(*r.PickupDeadline) {
		return appErrors.WithDetails(appErrors.ErrReservationExpired, transitionDetails(r))
	}
	return nil
}

func checkCancel(r models.Reservation) error {
	if r.IsTerminal() {
		return appErrors.WithDetails(appErrors.ErrAlreadyTerminal, transitionDetails(r))
	}
	return nil
}

func checkExtend(r models.Reservation) error {
	if r.Status != models.ReservationStatusAwaitingPickup {
		return appErrors.WithDetails(appErrors.ErrNotAwaitingPickup, transitionDetails(r))
	}
	return nil
}

func checkDelete(r models.Reservation) error {
	if r.Status != models.ReservationStatusCancelled {
		return appErrors.WithDetails(appErrors.ErrInvalidTransition, transitionDetails(r))
	}
	return nil
}

// expirable reports whether the sweeper should cancel the reservation at now.
func expirable(r models.Reservation, now time.Time) bool {
	return r.Status == models.ReservationStatusAwaitingPickup && r.PickupDeadline != nil && now.After(*r.PickupDeadline)
}
