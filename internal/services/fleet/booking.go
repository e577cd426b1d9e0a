package fleet

import (
	"drt-simulator/internal/domain"
	"drt-simulator/internal/sim"
	"errors"
)

var (
	// The solver left the request unassigned.
	ErrUndeliverable = errors.New("request undeliverable")

	ErrNoPendingSolution = errors.New("no pending solution")
	ErrUnknownVehicle    = errors.New("unknown vehicle")
	ErrUnknownBooking    = errors.New("act references an unknown booking")
	ErrCapacityUnderflow = errors.New("capacity underflow")
	ErrCapacityOverflow  = errors.New("capacity overflow")
	ErrOutOfSteps        = errors.New("interpolation ran out of steps")
	ErrUnmaterialized    = errors.New("move act has no geometry")
	// The solver moved or dropped a committed job.
	ErrInconsistentSolution = errors.New("solution does not keep committed jobs")
)

// Request is one door-to-door DRT leg to be inserted into the fleet schedule.
type Request struct {
	Person           int
	Pickup           domain.Coord
	Delivery         domain.Coord
	PickupTW         domain.TimeWindow
	DeliveryTW       domain.TimeWindow
	BoardingTime     float64
	LeavingTime      float64
	Dims             domain.Dimensions
	MaxInVehicleTime float64
}

type BookingStatus string

const (
	BookingPlanned   BookingStatus = "PLANNED"
	BookingOnBoard   BookingStatus = "ON_BOARD"
	BookingDelivered BookingStatus = "DELIVERED"
)

// Booking is a committed request and the DRT leg the traveler actually rides.
type Booking struct {
	Request Request
	Vehicle string
	Status  BookingStatus

	// Planned service start times from the committed route.
	PlannedPickup  float64
	PlannedDropoff float64

	PickupTime  float64
	DropoffTime float64
	// Leg accumulates the steps ridden while on board.
	Leg domain.Leg
	// Executed fires with the finished domain.Leg when the traveler is dropped off.
	Executed *sim.Event
}

// Metrics receives named counter increments.
type Metrics interface {
	Inc(key string)
}

type nopMetrics struct{}

func (nopMetrics) Inc(string) {}
