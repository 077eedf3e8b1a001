package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrConflict            = errors.New("availability already exists for this caregiver and date")
	ErrNotFound            = errors.New("not found")
	ErrNoAvailability      = errors.New("no caregiver is available on this date")
	ErrVaccineUnavailable  = errors.New("vaccine is not available")
	ErrAlreadyBooked       = errors.New("slot is already booked")
	ErrInsufficientStock   = errors.New("insufficient vaccine stock")
	ErrAllocationExhausted = errors.New("could not allocate an appointment id")
	ErrBusy                = errors.New("resource is busy, please retry shortly")
	ErrStorage             = errors.New("storage failure")
)

// domainErrors pass through store wrapping untouched.
var domainErrors = []error{
	ErrInvalidArgument,
	ErrPermissionDenied,
	ErrConflict,
	ErrNotFound,
	ErrNoAvailability,
	ErrVaccineUnavailable,
	ErrAlreadyBooked,
	ErrInsufficientStock,
	ErrAllocationExhausted,
	ErrBusy,
	ErrStorage,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storageErr tags a store failure with ErrStorage unless it is already one of
// the taxonomy errors.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

type errorInfo struct {
	code    string
	message string
}

var errorTable = []struct {
	target error
	info   errorInfo
}{
	{ErrInvalidArgument, errorInfo{"invalid_argument", "The request contains an invalid value."}},
	{ErrPermissionDenied, errorInfo{"permission_denied", "Your role is not allowed to perform this operation."}},
	{ErrConflict, errorInfo{"availability_conflict", "You already uploaded availability for this date."}},
	{ErrNotFound, errorInfo{"not_found", "No matching appointment was found."}},
	{ErrNoAvailability, errorInfo{"no_availability", "No caregiver is available on the requested date."}},
	{ErrVaccineUnavailable, errorInfo{"vaccine_unavailable", "The requested vaccine is out of stock."}},
	{ErrAlreadyBooked, errorInfo{"already_booked", "This slot has already been booked."}},
	{ErrInsufficientStock, errorInfo{"insufficient_stock", "There are not enough doses in stock."}},
	{ErrAllocationExhausted, errorInfo{"allocation_exhausted", "No appointment id could be allocated, try again later."}},
	{ErrBusy, errorInfo{"busy", "The schedule is being updated, please retry shortly."}},
	{ErrStorage, errorInfo{"storage_failure", "The schedule could not be read or written."}},
}

func lookup(err error) (errorInfo, bool) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.info, true
		}
	}
	return errorInfo{}, false
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	if info, ok := lookup(err); ok {
		return info.code
	}
	return "internal_error"
}

// Message returns the stable user-facing message for err.
func Message(err error) string {
	if info, ok := lookup(err); ok {
		return info.message
	}
	return "An unexpected error occurred."
}
