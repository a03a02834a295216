package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Unit says how a quantity is counted: kilograms, or packages of the
// commodity's standard weight.
type Unit string

const (
	UnitKg      Unit = "kg"
	UnitPackage Unit = "unit"
)

// Waybill is one commodity line of a delivery note received at a site.
type Waybill struct {
	ID            uuid.UUID       `json:"id"`
	WaybillNumber string          `json:"waybill_number"`
	SiteID        int64           `json:"site_id"`
	SiteName      string          `json:"site_name,omitempty"`
	Commodity     string          `json:"commodity"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          Unit            `json:"unit"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// MPOSRecord is a quantity handed out at a site, as exported by the mobile
// point-of-sale devices.
type MPOSRecord struct {
	ID             uuid.UUID       `json:"id"`
	SiteID         int64           `json:"site_id"`
	SiteName       string          `json:"site_name,omitempty"`
	Commodity      string          `json:"commodity"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           Unit            `json:"unit"`
	DistributedAt  time.Time       `json:"distributed_at"`
	HouseholdToken string          `json:"household_token,omitempty"`
}

// Filter selects rows with From <= t < To, optionally at one site (matched
// case-insensitively).
type Filter struct {
	From     time.Time
	To       time.Time
	SiteName string
}

// Total is the summed quantity of one commodity in one unit.
type Total struct {
	Commodity string
	Unit      Unit
	Quantity  decimal.Decimal
}

// Line compares received and distributed tonnage for one commodity.
type Line struct {
	Commodity      string          `json:"commodity"`
	ReceivedKg     decimal.Decimal `json:"received_kg"`
	DistributedKg  decimal.Decimal `json:"distributed_kg"`
	DifferenceKg   decimal.Decimal `json:"difference_kg"`
	PackageKg      decimal.Decimal `json:"package_kg"`
	Packages       int64           `json:"packages"`
	Recommendation string          `json:"recommendation"`
}

type Report struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	SiteName    string    `json:"site_name,omitempty"`
	Lines       []Line    `json:"lines"`
	GeneratedAt time.Time `json:"generated_at"`
}
