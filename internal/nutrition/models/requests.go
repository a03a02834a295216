package models

import (
	"strings"
	"time"

	"aidtrack/internal/identity"
	dErrors "aidtrack/pkg/domain-errors"
	pkgstrings "aidtrack/pkg/platform/strings"
)

// DefaultMaxSignatureBytes bounds the signature image when no limit is configured.
const DefaultMaxSignatureBytes = 256 * 1024

const maxFieldLength = 200

// RegisterBeneficiaryRequest is the body of POST /api/nutrition/register-beneficiary.
type RegisterBeneficiaryRequest struct {
	SiteName       string   `json:"site_name"`
	SiteAddress    string   `json:"site_address,omitempty"`
	FirstName      string   `json:"first_name"`
	MiddleName     string   `json:"middle_name,omitempty"`
	LastName       string   `json:"last_name"`
	DateOfBirth    string   `json:"date_of_birth"`
	Sex            Sex      `json:"sex"`
	Category       Category `json:"category"`
	GuardianName   string   `json:"guardian_name,omitempty"`
	HouseholdToken string   `json:"household_token,omitempty"`

	// BirthDate is DateOfBirth parsed by Validate.
	BirthDate time.Time `json:"-"`
}

func (r *RegisterBeneficiaryRequest) Normalize() {
	if r == nil {
		return
	}
	r.SiteName = pkgstrings.CollapseSpaces(r.SiteName)
	r.SiteAddress = strings.TrimSpace(r.SiteAddress)
	r.FirstName = pkgstrings.CollapseSpaces(r.FirstName)
	r.MiddleName = pkgstrings.CollapseSpaces(r.MiddleName)
	r.LastName = pkgstrings.CollapseSpaces(r.LastName)
	r.DateOfBirth = strings.TrimSpace(r.DateOfBirth)
	r.Sex = Sex(strings.ToUpper(strings.TrimSpace(string(r.Sex))))
	r.Category = Category(strings.ToUpper(strings.TrimSpace(string(r.Category))))
	r.GuardianName = pkgstrings.CollapseSpaces(r.GuardianName)
	r.HouseholdToken = identity.Clean(r.HouseholdToken)
}

// Validate checks sizes, required fields, then syntax. A birth date after now
// is rejected.
func (r *RegisterBeneficiaryRequest) Validate(now time.Time) error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	for _, f := range []struct{ name, value string }{
		{"site_name", r.SiteName},
		{"first_name", r.FirstName},
		{"middle_name", r.MiddleName},
		{"last_name", r.LastName},
		{"guardian_name", r.GuardianName},
	} {
		if len(f.value) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, f.name+" is too long")
		}
	}

	switch {
	case r.SiteName == "":
		return dErrors.New(dErrors.CodeValidation, "site_name is required")
	case r.FirstName == "":
		return dErrors.New(dErrors.CodeValidation, "first_name is required")
	case r.LastName == "":
		return dErrors.New(dErrors.CodeValidation, "last_name is required")
	case r.DateOfBirth == "":
		return dErrors.New(dErrors.CodeValidation, "date_of_birth is required")
	}

	dob, err := time.Parse(time.DateOnly, r.DateOfBirth)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "date_of_birth must be YYYY-MM-DD")
	}
	if dob.After(now) {
		return dErrors.New(dErrors.CodeValidation, "date_of_birth is in the future")
	}
	if r.Sex != SexFemale && r.Sex != SexMale {
		return dErrors.New(dErrors.CodeValidation, "sex must be F or M")
	}
	if !r.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "category is not a nutrition programme category")
	}
	r.BirthDate = dob
	return nil
}

// Key returns the natural key of the beneficiary at siteID.
func (r *RegisterBeneficiaryRequest) Key(siteID int64) BeneficiaryKey {
	return BeneficiaryKey{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		DateOfBirth: r.BirthDate,
		SiteID:      siteID,
	}
}

// DistributionRequest is the body of POST /api/nutrition/distributions.
type DistributionRequest struct {
	CardNumber  string `json:"card_number"`
	SiteName    string `json:"site_name"`
	SiteAddress string `json:"site_address,omitempty"`
	Signature   string `json:"signature"`
}

func (r *DistributionRequest) Normalize() {
	if r == nil {
		return
	}
	r.CardNumber = strings.TrimSpace(r.CardNumber)
	r.SiteName = pkgstrings.CollapseSpaces(r.SiteName)
	r.SiteAddress = strings.TrimSpace(r.SiteAddress)
	r.Signature = strings.TrimSpace(r.Signature)
}

// Validate checks the signature size first, then required fields.
// maxSignatureBytes <= 0 uses DefaultMaxSignatureBytes.
func (r *DistributionRequest) Validate(maxSignatureBytes int) error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if maxSignatureBytes <= 0 {
		maxSignatureBytes = DefaultMaxSignatureBytes
	}
	if len(r.Signature) > maxSignatureBytes {
		return dErrors.New(dErrors.CodeValidation, "signature exceeds the maximum size")
	}
	if len(r.SiteName) > maxFieldLength {
		return dErrors.New(dErrors.CodeValidation, "site_name is too long")
	}

	switch {
	case r.CardNumber == "":
		return dErrors.New(dErrors.CodeValidation, "card_number is required")
	case r.SiteName == "":
		return dErrors.New(dErrors.CodeValidation, "site_name is required")
	case r.Signature == "":
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	return nil
}
