package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of a committed distribution. Rows are immutable once written, so every
// stored row is COMPLETED.
type Status string

const StatusCompleted Status = "COMPLETED"

type Site struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Household is keyed by its token number, stored upper-cased.
type Household struct {
	ID                    uuid.UUID `json:"id"`
	ExternalHouseholdCode string    `json:"external_household_code"`
	DisplayName           string    `json:"display_name"`
	TokenNumber           string    `json:"token_number"`
	SiteID                int64     `json:"site_id"`
	SiteName              string    `json:"site_name,omitempty"`
	BeneficiaryCount      int       `json:"beneficiary_count"`
	PrimaryRecipientName  string    `json:"primary_recipient_name"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Recipient struct {
	ID          uuid.UUID `json:"id"`
	HouseholdID uuid.UUID `json:"household_id"`
	FirstName   string    `json:"first_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	LastName    string    `json:"last_name"`
	IsPrincipal bool      `json:"is_principal"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Distribution struct {
	ID                 uuid.UUID `json:"id"`
	HouseholdID        uuid.UUID `json:"household_id"`
	SiteID             int64     `json:"site_id"`
	SiteName           string    `json:"site_name,omitempty"`
	RecipientID        uuid.UUID `json:"recipient_id"`
	DistributionDate   time.Time `json:"distribution_date"`
	WindowKey          string    `json:"-"`
	SignatureBlob      string    `json:"-"`
	Status             Status    `json:"status"`
	AlternateRecipient string    `json:"alternate_recipient,omitempty"`
}

type Signature struct {
	ID             uuid.UUID
	RecipientID    uuid.UUID
	DistributionID uuid.UUID
	SignatureData  string
	SignedAt       time.Time
}

// PersonName is a recipient's name as entered at the distribution point.
type PersonName struct {
	First  string
	Middle string
	Last   string
}

// Full joins the non-empty parts with single spaces.
func (p PersonName) Full() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.First, p.Middle, p.Last} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// HouseholdFields carries the descriptive fields written by an upsert. ID is
// used only when the token is new.
type HouseholdFields struct {
	ID                    uuid.UUID
	ExternalHouseholdCode string
	DisplayName           string
	TokenNumber           string
	SiteID                int64
	BeneficiaryCount      int
	PrimaryRecipientName  string
	Now                   time.Time
}

// Receipt is returned for a committed distribution.
type Receipt struct {
	DistributionID   uuid.UUID `json:"distribution_id"`
	HouseholdID      uuid.UUID `json:"household_id"`
	SiteID           int64     `json:"site_id"`
	RecipientID      uuid.UUID `json:"recipient_id"`
	DistributionDate time.Time `json:"distribution_date"`
}

// QRValidation previews a scan without writing anything. Valid reports that the
// code resolved to a household; AlreadyDistributed reports that it cannot be
// served again in the current window.
type QRValidation struct {
	Valid              bool           `json:"valid"`
	Household          *Household     `json:"household,omitempty"`
	AlreadyDistributed bool           `json:"alreadyDistributed"`
	LastDistributionAt *time.Time     `json:"lastDistributionAt,omitempty"`
	NextEligibleAt     *time.Time     `json:"nextEligibleAt,omitempty"`
	Distributions      []Distribution `json:"distributions"`
	MatchedVariant     string         `json:"matchedVariant,omitempty"`
}
