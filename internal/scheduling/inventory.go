package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxDoses bounds a vaccine's dose count to what the doses column holds.
const MaxDoses = math.MaxInt32

// Inventory tracks vaccine products and their remaining doses. Its methods run
// inside the caller's transaction.
type Inventory struct{}

func NewInventory() *Inventory {
	return &Inventory{}
}

func (inv *Inventory) Get(ctx context.Context, tx Tx, name string) (Vaccine, error) {
	if err := validateVaccineName(name); err != nil {
		return Vaccine{}, err
	}
	v, err := tx.GetVaccine(ctx, name)
	if err != nil {
		return Vaccine{}, storageErr("get vaccine", err)
	}
	return *v, nil
}

// Increase adds n doses, creating the product with n doses if it is new.
func (inv *Inventory) Increase(ctx context.Context, tx Tx, name string, n int) (Vaccine, error) {
	if err := validateVaccineName(name); err != nil {
		return Vaccine{}, err
	}
	if n <= 0 {
		return Vaccine{}, fmt.Errorf("%w: dose count must be positive, got %d", ErrInvalidArgument, n)
	}
	if n > MaxDoses {
		return Vaccine{}, fmt.Errorf("%w: dose count %d exceeds %d", ErrInvalidArgument, n, MaxDoses)
	}

	created, err := tx.CreateVaccineIfAbsent(ctx, name, n)
	if err != nil {
		return Vaccine{}, storageErr("create vaccine", err)
	}
	if created {
		return Vaccine{Name: name, Doses: n}, nil
	}

	v, err := tx.GetVaccine(ctx, name)
	if err != nil {
		return Vaccine{}, storageErr("get vaccine", err)
	}
	if n > MaxDoses-v.Doses {
		return Vaccine{}, fmt.Errorf("%w: vaccine %q has %d doses, adding %d exceeds %d", ErrInvalidArgument, name, v.Doses, n, MaxDoses)
	}
	v.Doses += n
	if err := tx.SetVaccineDoses(ctx, name, v.Doses); err != nil {
		return Vaccine{}, storageErr("update vaccine doses", err)
	}
	return *v, nil
}

// Decrease removes n doses. The count never goes below zero.
func (inv *Inventory) Decrease(ctx context.Context, tx Tx, name string, n int) (Vaccine, error) {
	if err := validateVaccineName(name); err != nil {
		return Vaccine{}, err
	}
	if n <= 0 {
		return Vaccine{}, fmt.Errorf("%w: dose count must be positive, got %d", ErrInvalidArgument, n)
	}

	v, err := tx.GetVaccine(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Vaccine{}, fmt.Errorf("vaccine %q: %w", name, ErrNotFound)
		}
		return Vaccine{}, storageErr("get vaccine", err)
	}
	if v.Doses < n {
		return Vaccine{}, fmt.Errorf("vaccine %q has %d doses, need %d: %w", name, v.Doses, n, ErrInsufficientStock)
	}
	v.Doses -= n
	if err := tx.SetVaccineDoses(ctx, name, v.Doses); err != nil {
		return Vaccine{}, storageErr("update vaccine doses", err)
	}
	return *v, nil
}

func (inv *Inventory) List(ctx context.Context, tx Tx) ([]Vaccine, error) {
	vs, err := tx.ListVaccines(ctx)
	if err != nil {
		return nil, storageErr("list vaccines", err)
	}
	return vs, nil
}

func validateVaccineName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: vaccine name is required", ErrInvalidArgument)
	}
	return nil
}
