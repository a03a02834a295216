package models

import (
	"strconv"
	"strings"

	"aidtrack/internal/identity"
	dErrors "aidtrack/pkg/domain-errors"
	pkgstrings "aidtrack/pkg/platform/strings"
)

// RegisterRequest is the body of POST /api/register-distribution.
type RegisterRequest struct {
	SiteName           string `json:"site_name"`
	SiteAddress        string `json:"site_address,omitempty"`
	HouseholdID        string `json:"household_id"`
	TokenNumber        string `json:"token_number"`
	BeneficiaryCount   int    `json:"beneficiary_count"`
	FirstName          string `json:"first_name"`
	MiddleName         string `json:"middle_name,omitempty"`
	LastName           string `json:"last_name"`
	AlternateRecipient string `json:"alternate_recipient,omitempty"`
	Signature          string `json:"signature"`
}

// Limits bounds request fields. Zero values fall back to the defaults.
type Limits struct {
	MaxSignatureBytes   int
	MaxBeneficiaryCount int
}

const (
	DefaultMaxSignatureBytes   = 256 * 1024
	DefaultMaxBeneficiaryCount = 100
	maxNameLength              = 200
)

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.SiteName = pkgstrings.CollapseSpaces(r.SiteName)
	r.SiteAddress = strings.TrimSpace(r.SiteAddress)
	r.HouseholdID = strings.TrimSpace(r.HouseholdID)
	r.TokenNumber = identity.Clean(r.TokenNumber)
	r.FirstName = pkgstrings.CollapseSpaces(r.FirstName)
	r.MiddleName = pkgstrings.CollapseSpaces(r.MiddleName)
	r.LastName = pkgstrings.CollapseSpaces(r.LastName)
	r.AlternateRecipient = pkgstrings.CollapseSpaces(r.AlternateRecipient)
	r.Signature = strings.TrimSpace(r.Signature)
}

// Validate checks size, then required fields, then ranges.
func (r *RegisterRequest) Validate(limits Limits) error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	maxSig := limits.MaxSignatureBytes
	if maxSig <= 0 {
		maxSig = DefaultMaxSignatureBytes
	}
	maxCount := limits.MaxBeneficiaryCount
	if maxCount <= 0 {
		maxCount = DefaultMaxBeneficiaryCount
	}

	if len(r.Signature) > maxSig {
		return dErrors.New(dErrors.CodeValidation, "signature exceeds the maximum size")
	}
	for _, f := range []struct{ name, value string }{
		{"site_name", r.SiteName},
		{"first_name", r.FirstName},
		{"middle_name", r.MiddleName},
		{"last_name", r.LastName},
		{"alternate_recipient", r.AlternateRecipient},
	} {
		if len(f.value) > maxNameLength {
			return dErrors.New(dErrors.CodeValidation, f.name+" is too long")
		}
	}

	switch {
	case r.SiteName == "":
		return dErrors.New(dErrors.CodeValidation, "site_name is required")
	case r.HouseholdID == "":
		return dErrors.New(dErrors.CodeValidation, "household_id is required")
	case r.TokenNumber == "":
		return dErrors.New(dErrors.CodeValidation, "token_number is required")
	case r.FirstName == "":
		return dErrors.New(dErrors.CodeValidation, "first_name is required")
	case r.LastName == "":
		return dErrors.New(dErrors.CodeValidation, "last_name is required")
	case r.Signature == "":
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}

	if r.BeneficiaryCount < 1 || r.BeneficiaryCount > maxCount {
		return dErrors.New(dErrors.CodeValidation, "beneficiary_count must be between 1 and "+strconv.Itoa(maxCount))
	}
	return nil
}

// Principal returns the principal recipient's name.
func (r *RegisterRequest) Principal() PersonName {
	return PersonName{First: r.FirstName, Middle: r.MiddleName, Last: r.LastName}
}

// QRScanRequest is the body of POST /api/process-qr-scan.
type QRScanRequest struct {
	QRData string `json:"qrData"`
}

// ValidateQRRequest is the body of POST /api/validate-qr.
type ValidateQRRequest struct {
	QRCode string `json:"qrCode"`
}
