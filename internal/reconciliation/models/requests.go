package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "aidtrack/pkg/domain-errors"
	pkgstrings "aidtrack/pkg/platform/strings"
)

// maxQuantity bounds a single row to what NUMERIC(14,3) can hold.
var maxQuantity = decimal.RequireFromString("99999999999.999")

// RecordWaybillRequest is the body of POST /api/waybills.
type RecordWaybillRequest struct {
	WaybillNumber string          `json:"waybill_number"`
	SiteName      string          `json:"site_name"`
	Commodity     string          `json:"commodity"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          Unit            `json:"unit"`
	ReceivedAt    time.Time       `json:"received_at"`
}

func (r *RecordWaybillRequest) Normalize() {
	if r == nil {
		return
	}
	r.WaybillNumber = strings.ToUpper(strings.TrimSpace(r.WaybillNumber))
	r.SiteName = pkgstrings.CollapseSpaces(r.SiteName)
	r.Commodity = pkgstrings.CollapseSpaces(r.Commodity)
	r.Unit = normalizeUnit(r.Unit)
}

func (r *RecordWaybillRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	switch {
	case r.WaybillNumber == "":
		return dErrors.New(dErrors.CodeValidation, "waybill_number is required")
	case r.SiteName == "":
		return dErrors.New(dErrors.CodeValidation, "site_name is required")
	case r.Commodity == "":
		return dErrors.New(dErrors.CodeValidation, "commodity is required")
	case r.ReceivedAt.IsZero():
		return dErrors.New(dErrors.CodeValidation, "received_at is required")
	}
	return validateQuantity(r.Quantity, r.Unit)
}

// RecordMPOSRequest is the body of POST /api/mpos-records.
type RecordMPOSRequest struct {
	SiteName       string          `json:"site_name"`
	Commodity      string          `json:"commodity"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           Unit            `json:"unit"`
	DistributedAt  time.Time       `json:"distributed_at"`
	HouseholdToken string          `json:"household_token,omitempty"`
}

func (r *RecordMPOSRequest) Normalize() {
	if r == nil {
		return
	}
	r.SiteName = pkgstrings.CollapseSpaces(r.SiteName)
	r.Commodity = pkgstrings.CollapseSpaces(r.Commodity)
	r.Unit = normalizeUnit(r.Unit)
	r.HouseholdToken = strings.ToUpper(strings.TrimSpace(r.HouseholdToken))
}

func (r *RecordMPOSRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	switch {
	case r.SiteName == "":
		return dErrors.New(dErrors.CodeValidation, "site_name is required")
	case r.Commodity == "":
		return dErrors.New(dErrors.CodeValidation, "commodity is required")
	case r.DistributedAt.IsZero():
		return dErrors.New(dErrors.CodeValidation, "distributed_at is required")
	}
	return validateQuantity(r.Quantity, r.Unit)
}

// Validate rejects empty and inverted ranges.
func (f Filter) Validate() error {
	if f.From.IsZero() || f.To.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "from and to are required")
	}
	if !f.From.Before(f.To) {
		return dErrors.New(dErrors.CodeValidation, "from must be before to")
	}
	return nil
}

func normalizeUnit(u Unit) Unit {
	u = Unit(strings.ToLower(strings.TrimSpace(string(u))))
	if u == "" {
		return UnitPackage
	}
	return u
}

func validateQuantity(q decimal.Decimal, unit Unit) error {
	if unit != UnitKg && unit != UnitPackage {
		return dErrors.New(dErrors.CodeValidation, "unit must be kg or unit")
	}
	if q.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "quantity must not be negative")
	}
	if q.GreaterThan(maxQuantity) {
		return dErrors.New(dErrors.CodeValidation, "quantity is too large")
	}
	if q.Exponent() < -3 && !q.Equal(q.Round(3)) {
		return dErrors.New(dErrors.CodeValidation, "quantity has more than three decimals")
	}
	return nil
}
