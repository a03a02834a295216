package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Sex string

const (
	SexFemale Sex = "F"
	SexMale   Sex = "M"
)

// Category is the nutrition programme a beneficiary is enrolled under.
type Category string

const (
	CategoryChild     Category = "CHILD_6_59_MONTHS"
	CategoryPregnant  Category = "PREGNANT_WOMAN"
	CategoryLactating Category = "LACTATING_WOMAN"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryChild, CategoryPregnant, CategoryLactating:
		return true
	}
	return false
}

type RationStatus string

const (
	RationActive    RationStatus = "ACTIVE"
	RationInactive  RationStatus = "INACTIVE"
	RationCompleted RationStatus = "COMPLETED"
)

// Beneficiary is unique on (first name, last name, date of birth, site),
// names compared case-insensitively.
type Beneficiary struct {
	ID                 uuid.UUID `json:"id"`
	RegistrationNumber string    `json:"registration_number"`
	SiteID             int64     `json:"site_id"`
	SiteName           string    `json:"site_name,omitempty"`
	FirstName          string    `json:"first_name"`
	MiddleName         string    `json:"middle_name,omitempty"`
	LastName           string    `json:"last_name"`
	DateOfBirth        time.Time `json:"date_of_birth"`
	Sex                Sex       `json:"sex"`
	Category           Category  `json:"category"`
	GuardianName       string    `json:"guardian_name,omitempty"`
	HouseholdToken     string    `json:"household_token,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BeneficiaryKey is the natural key of a beneficiary.
type BeneficiaryKey struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	SiteID      int64
}

// String is the lock and map key form: lower-cased names, ISO date, site id.
func (k BeneficiaryKey) String() string {
	return strings.ToLower(k.FirstName) + "|" + strings.ToLower(k.LastName) + "|" +
		k.DateOfBirth.Format(time.DateOnly) + "|" + strconv.FormatInt(k.SiteID, 10)
}

// Ration is a card entitling its beneficiary to rations between StartDate
// (inclusive) and EndDate (exclusive). At most one ration per beneficiary is
// ACTIVE.
type Ration struct {
	ID            uuid.UUID    `json:"id"`
	BeneficiaryID uuid.UUID    `json:"beneficiary_id"`
	CardNumber    string       `json:"card_number"`
	StartDate     time.Time    `json:"start_date"`
	EndDate       time.Time    `json:"end_date"`
	Status        RationStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Covers reports whether the ration is active on the calendar date of t in loc.
func (r *Ration) Covers(t time.Time, loc *time.Location) bool {
	if r == nil || r.Status != RationActive {
		return false
	}
	day := t.In(loc).Format(time.DateOnly)
	return day >= r.StartDate.Format(time.DateOnly) && day < r.EndDate.Format(time.DateOnly)
}

type Distribution struct {
	ID               uuid.UUID `json:"id"`
	BeneficiaryID    uuid.UUID `json:"beneficiary_id"`
	RationID         uuid.UUID `json:"ration_id"`
	SiteID           int64     `json:"site_id"`
	SiteName         string    `json:"site_name,omitempty"`
	DistributionDate time.Time `json:"distribution_date"`
	SignatureData    string    `json:"-"`
	Status           string    `json:"status"`
}

type Signature struct {
	ID                      uuid.UUID
	BeneficiaryID           uuid.UUID
	NutritionDistributionID uuid.UUID
	SignatureData           string
	SignedAt                time.Time
}

// Card joins a ration card to its beneficiary.
type Card struct {
	Beneficiary *Beneficiary `json:"beneficiary"`
	Ration      *Ration      `json:"ration"`
}

// CardDetails answers a card lookup.
type CardDetails struct {
	Card
	Eligible           bool           `json:"eligible"`
	Reason             string         `json:"reason,omitempty"`
	LastDistributionAt *time.Time     `json:"last_distribution_at,omitempty"`
	NextEligibleAt     *time.Time     `json:"next_eligible_at,omitempty"`
	Distributions      []Distribution `json:"distributions"`
	MatchedVariant     string         `json:"matched_variant,omitempty"`
}

type BeneficiaryReceipt struct {
	BeneficiaryID      uuid.UUID `json:"beneficiary_id"`
	RegistrationNumber string    `json:"registration_number"`
	RationID           uuid.UUID `json:"ration_id"`
	CardNumber         string    `json:"card_number"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	Created            bool      `json:"created"`
}

type DistributionReceipt struct {
	DistributionID   uuid.UUID `json:"distribution_id"`
	BeneficiaryID    uuid.UUID `json:"beneficiary_id"`
	RationID         uuid.UUID `json:"ration_id"`
	CardNumber       string    `json:"card_number"`
	SiteID           int64     `json:"site_id"`
	DistributionDate time.Time `json:"distribution_date"`
}
