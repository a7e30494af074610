package service

import (
	"fmt"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

type Action string

const (
	ActionEstimateFare          Action = "estimate_fare"
	ActionCreateBooking         Action = "create_booking"
	ActionListBookings          Action = "list_bookings"
	ActionViewBooking           Action = "view_booking"
	ActionCancelBooking         Action = "cancel_booking"
	ActionRateBooking           Action = "rate_booking"
	ActionAcceptBooking         Action = "accept_booking"
	ActionAssignDriver          Action = "assign_driver"
	ActionAdvanceBooking        Action = "advance_booking"
	ActionCompleteBooking       Action = "complete_booking"
	ActionFinalizeBooking       Action = "finalize_booking"
	ActionUpdatePayment         Action = "update_payment"
	ActionInvoice               Action = "invoice"
	ActionListAvailableBookings Action = "list_available_bookings"
	ActionFindDrivers           Action = "find_drivers"
	ActionViewDriver            Action = "view_driver"
	ActionUpdateDriverStatus    Action = "update_driver_status"
	ActionUpdateDriverLocation  Action = "update_driver_location"
	ActionVerifyDriver          Action = "verify_driver"
	ActionManageVehicles        Action = "manage_vehicles"
	ActionManageUsers           Action = "manage_users"
	ActionViewReports           Action = "view_reports"
)

type actionSet map[Action]bool

var (
	customerActions = actionSet{
		ActionEstimateFare:  true,
		ActionCreateBooking: true,
		ActionListBookings:  true,
		ActionViewBooking:   true,
		ActionCancelBooking: true,
		ActionRateBooking:   true,
		ActionInvoice:       true,
	}
	driverActions = actionSet{
		ActionEstimateFare:          true,
		ActionListBookings:          true,
		ActionViewBooking:           true,
		ActionCancelBooking:         true,
		ActionAcceptBooking:         true,
		ActionAdvanceBooking:        true,
		ActionCompleteBooking:       true,
		ActionInvoice:               true,
		ActionListAvailableBookings: true,
		ActionViewDriver:            true,
		ActionUpdateDriverStatus:    true,
		ActionUpdateDriverLocation:  true,
		ActionManageVehicles:        true,
	}
	adminActions = actionSet{
		ActionEstimateFare:       true,
		ActionListBookings:       true,
		ActionViewBooking:        true,
		ActionCancelBooking:      true,
		ActionAssignDriver:       true,
		ActionCompleteBooking:    true,
		ActionFinalizeBooking:    true,
		ActionUpdatePayment:      true,
		ActionInvoice:            true,
		ActionFindDrivers:        true,
		ActionViewDriver:         true,
		ActionUpdateDriverStatus: true,
		ActionVerifyDriver:       true,
		ActionManageVehicles:     true,
		ActionManageUsers:        true,
		ActionViewReports:        true,
	}
)

// Gate decides who may invoke which operation. It runs before any state
// machine guard, so a caller lacking permission always sees ErrForbidden.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) Authorize(actor domain.Identity, action Action) error {
	if actor.UserID == "" {
		return domain.ErrUnauthorized
	}

	var allowed actionSet
	switch actor.Role {
	case domain.RoleCustomer:
		allowed = customerActions
	case domain.RoleDriver:
		if actor.DriverID == "" {
			return fmt.Errorf("%w: driver profile missing", domain.ErrForbidden)
		}
		allowed = driverActions
	case domain.RoleAdmin:
		allowed = adminActions
	default:
		return fmt.Errorf("%w: unknown role %q", domain.ErrForbidden, actor.Role)
	}

	if !allowed[action] {
		return fmt.Errorf("%w: %s may not %s", domain.ErrForbidden, actor.Role, action)
	}
	return nil
}

// AuthorizeBooking applies the role check and then the ownership rules for b.
func (g *Gate) AuthorizeBooking(actor domain.Identity, action Action, b domain.Booking) error {
	if err := g.Authorize(actor, action); err != nil {
		return err
	}

	owner := actor.Role == domain.RoleCustomer && actor.UserID == b.CustomerID
	assigned := actor.Role == domain.RoleDriver && b.AssignedTo(actor.DriverID)

	var ok bool
	switch action {
	case ActionViewBooking:
		ok = actor.IsAdmin() || owner || assigned ||
			(actor.Role == domain.RoleDriver && b.Status == domain.BookingPending)
	case ActionCancelBooking, ActionInvoice:
		ok = actor.IsAdmin() || owner || assigned
	case ActionRateBooking:
		ok = owner
	case ActionAdvanceBooking:
		ok = assigned
	case ActionCompleteBooking:
		ok = actor.IsAdmin() || assigned
	case ActionAcceptBooking:
		ok = actor.Role == domain.RoleDriver
	case ActionAssignDriver, ActionFinalizeBooking, ActionUpdatePayment:
		ok = actor.IsAdmin()
	}

	if !ok {
		return fmt.Errorf("%w: not permitted on booking %s", domain.ErrForbidden, b.ID)
	}
	return nil
}

// AuthorizeDriver checks an operation on a driver profile: drivers act on
// themselves, admins on anyone the action allows.
func (g *Gate) AuthorizeDriver(actor domain.Identity, action Action, driverID string) error {
	if err := g.Authorize(actor, action); err != nil {
		return err
	}
	if actor.Role == domain.RoleDriver && actor.DriverID != driverID {
		return fmt.Errorf("%w: drivers may only act on their own profile", domain.ErrForbidden)
	}
	return nil
}
