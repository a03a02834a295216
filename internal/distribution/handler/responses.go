package handler

import (
	"time"

	"aidtrack/internal/distribution/models"
)

// RegisterResponse is the data of a 201 from POST /api/register-distribution.
type RegisterResponse struct {
	DistributionID   string    `json:"distribution_id"`
	HouseholdID      string    `json:"household_id"`
	SiteID           int64     `json:"site_id"`
	DistributionDate time.Time `json:"distribution_date"`
}

type QRScanResponse struct {
	Household      *models.Household `json:"household"`
	MatchedVariant string            `json:"matchedVariant"`
}

// ValidateQRResponse flattens the validation result next to the success flag,
// which is the shape the scanning client reads.
type ValidateQRResponse struct {
	Success bool `json:"success"`
	*models.QRValidation
}

type HistoryResponse struct {
	Household     *models.Household     `json:"household"`
	Distributions []models.Distribution `json:"distributions"`
}
