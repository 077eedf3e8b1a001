package scheduling

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Role string

const (
	RoleCaregiver Role = "caregiver"
	RolePatient   Role = "patient"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCaregiver:
		return RoleCaregiver, nil
	case RolePatient:
		return RolePatient, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
}

// Actor is the already-authenticated identity a request is made on behalf of.
type Actor struct {
	Role Role
	ID   string
}

func Caregiver(id string) Actor { return Actor{Role: RoleCaregiver, ID: id} }
func Patient(id string) Actor   { return Actor{Role: RolePatient, ID: id} }

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID
}

func (a Actor) validate() error {
	if a.Role != RoleCaregiver && a.Role != RolePatient {
		return fmt.Errorf("%w: actor role is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: actor id is required", ErrInvalidArgument)
	}
	return nil
}

// Slot is one caregiver's availability on one calendar date. Patient and
// Vaccine are both set (booked) or both nil (open).
type Slot struct {
	ID        int64
	Caregiver string
	Date      time.Time
	Patient   *string
	Vaccine   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Slot) Booked() bool {
	return s.Patient != nil
}

func (s Slot) Clone() Slot {
	out := s
	if s.Patient != nil {
		p := *s.Patient
		out.Patient = &p
	}
	if s.Vaccine != nil {
		v := *s.Vaccine
		out.Vaccine = &v
	}
	return out
}

type Vaccine struct {
	Name      string
	Doses     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reservation is what a patient gets back from a successful Reserve.
type Reservation struct {
	AppointmentID int64
	Caregiver     string
	Patient       string
	Vaccine       string
	Date          time.Time
}

type Cancellation struct {
	AppointmentID int64
	Caregiver     string
	Date          time.Time
	// Vaccine is the product credited back, empty when the slot was open.
	Vaccine string
}

type Schedule struct {
	Date       time.Time
	Caregivers []string
	Vaccines   []Vaccine
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func strPtr(s string) *string {
	return &s
}
