package model

import (
	"strings"
	"unicode"
)

// ContractRequest holds the structured form data for one employment agreement.
// It only lives for the duration of a single generation call.
type ContractRequest struct {
	EmployerName          string   `json:"employerName" validate:"required,notblank,min=2"`
	EmployeeName          string   `json:"employeeName" validate:"required,notblank"`
	JobTitle              string   `json:"jobTitle" validate:"required,notblank"`
	JobDescription        string   `json:"jobDescription,omitempty"`
	StartDate             string   `json:"startDate" validate:"required,notblank"`
	HasInitialTerm        bool     `json:"hasInitialTerm"`
	HasNoEndDate          bool     `json:"hasNoEndDate"`
	OnSitePresence        string   `json:"onSitePresence,omitempty"`
	Salary                string   `json:"salary" validate:"required,notblank"`
	Benefits              Benefits `json:"benefits"`
	OtherBenefits         string   `json:"otherBenefits,omitempty"`
	IncludeNda            bool     `json:"includeNda"`
	IncludeNonCompetition bool     `json:"includeNonCompetition"`
	AttyInNotice          bool     `json:"attyInNotice"`
	AttorneyName          string   `json:"attorneyName,omitempty"`
	Prose                 string   `json:"prose,omitempty"`
}

// Benefits are the independent benefit flags offered by the form.
type Benefits struct {
	Health            bool `json:"health"`
	Dental            bool `json:"dental"`
	VacationSick      bool `json:"vacationSick"`
	Parking           bool `json:"parking"`
	ProfitSharing     bool `json:"profitSharing"`
	FourZeroOneK      bool `json:"fourZeroOneK"`
	PaidBarMembership bool `json:"paidBarMembership"`
	ClePaid           bool `json:"clePaid"`
	CellPhone         bool `json:"cellPhone"`
}

type benefitFlag struct {
	key     string
	enabled bool
}

// flags keeps the form order, which is also the order labels appear in prompts.
func (b Benefits) flags() []benefitFlag {
	return []benefitFlag{
		{"health", b.Health},
		{"dental", b.Dental},
		{"vacationSick", b.VacationSick},
		{"parking", b.Parking},
		{"profitSharing", b.ProfitSharing},
		{"fourZeroOneK", b.FourZeroOneK},
		{"paidBarMembership", b.PaidBarMembership},
		{"clePaid", b.ClePaid},
		{"cellPhone", b.CellPhone},
	}
}

// Selected returns the labels of the enabled benefits.
func (b Benefits) Selected() []string {
	var labels []string
	for _, f := range b.flags() {
		if f.enabled {
			labels = append(labels, HumanizeKey(f.key))
		}
	}
	return labels
}

// HumanizeKey turns a camelCase field name into a title such as "Vacation Sick".
func HumanizeKey(key string) string {
	var sb strings.Builder
	for i, r := range key {
		if i == 0 {
			sb.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// UploadedTemplate is a template document sent alongside the form.
// It is discarded once its text has been extracted.
type UploadedTemplate struct {
	Filename  string
	MediaType string
	Data      []byte
}

// DescriptionRequest asks for a "Scope of Duties" snippet for a position.
type DescriptionRequest struct {
	JobTitle        string `json:"jobTitle" validate:"required,notblank"`
	CompanyName     string `json:"companyName" validate:"required,notblank"`
	CompanyBusiness string `json:"companyBusiness,omitempty"`
}
