package handler

import (
	"onboarding/internal/registration/models"
	"onboarding/internal/registration/service"
)

// SessionResponse is the JSON view of a registration session.
type SessionResponse struct {
	SessionID        string             `json:"session_id"`
	Step             models.Step        `json:"step"`
	CanAdvance       bool               `json:"can_advance"`
	Outcome          string             `json:"outcome,omitempty"`
	FaceStatus       models.FaceStatus  `json:"face_status,omitempty"`
	ContractAccepted bool               `json:"contract_accepted"`
	Closed           bool               `json:"closed,omitempty"`
	Milestones       []models.Milestone `json:"milestones"`
	Record           models.Record      `json:"record"`
}

func toSessionResponse(v *service.View) SessionResponse {
	return SessionResponse{
		SessionID:        v.SessionID.String(),
		Step:             v.Step,
		CanAdvance:       v.CanAdvance,
		Outcome:          string(v.Outcome),
		FaceStatus:       v.FaceStatus,
		ContractAccepted: v.ContractAccepted,
		Closed:           v.Closed,
		Milestones:       v.Milestones,
		Record:           v.Record,
	}
}

// UpdateFieldsRequest carries the fields of the current step. Absent members
// are left unchanged. The address is not writable.
type UpdateFieldsRequest struct {
	PhoneNumber           *string             `json:"phone_number,omitempty"`
	OTPCode               *string             `json:"otp_code,omitempty"`
	NationalID            *string             `json:"national_id,omitempty"`
	DateOfBirth           *models.DateOfBirth `json:"date_of_birth,omitempty"`
	CertificateCode       *string             `json:"certificate_code,omitempty"`
	PostalCode            *string             `json:"postal_code,omitempty"`
	BusinessCategory      *string             `json:"business_category,omitempty"`
	BankAccountIdentifier *string             `json:"bank_account_identifier,omitempty"`
	AccountHolderName     *string             `json:"account_holder_name,omitempty"`
	ContractAccepted      *bool               `json:"contract_accepted,omitempty"`
}

func (r UpdateFieldsRequest) toUpdate() service.FieldUpdate {
	return service.FieldUpdate{
		PhoneNumber:           r.PhoneNumber,
		OTPCode:               r.OTPCode,
		NationalID:            r.NationalID,
		DateOfBirth:           r.DateOfBirth,
		CertificateCode:       r.CertificateCode,
		PostalCode:            r.PostalCode,
		BusinessCategory:      r.BusinessCategory,
		BankAccountIdentifier: r.BankAccountIdentifier,
		AccountHolderName:     r.AccountHolderName,
		ContractAccepted:      r.ContractAccepted,
	}
}

type SelectDocumentTypeRequest struct {
	DocumentType string `json:"document_type"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}
