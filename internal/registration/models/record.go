package models

import (
	"fmt"

	id "onboarding/pkg/domain"
)

// DocumentType is the identity document the merchant chose to upload.
type DocumentType string

const (
	DocumentUnset       DocumentType = ""
	DocumentSmartCard   DocumentType = "smart_card"
	DocumentCertificate DocumentType = "certificate"
)

// ParseDocumentType accepts only the two selectable document types.
func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(s) {
	case DocumentSmartCard, DocumentCertificate:
		return DocumentType(s), nil
	}
	return DocumentUnset, fmt.Errorf("unknown document type %q", s)
}

// ImageSlot names a record field that holds an uploaded image.
type ImageSlot string

const (
	SlotSmartCardFront   ImageSlot = "smart_card_front"
	SlotSmartCardBack    ImageSlot = "smart_card_back"
	SlotBirthCertificate ImageSlot = "birth_certificate"
)

// ParseImageSlot validates a slot name taken from a request path.
func ParseImageSlot(s string) (ImageSlot, error) {
	switch ImageSlot(s) {
	case SlotSmartCardFront, SlotSmartCardBack, SlotBirthCertificate:
		return ImageSlot(s), nil
	}
	return "", fmt.Errorf("unknown image slot %q", s)
}

// ImageRef is an opaque handle to an uploaded image blob.
type ImageRef struct {
	ID          id.ImageID `json:"id"`
	ContentType string     `json:"content_type"`
	Size        int        `json:"size"`
}

// DateOfBirth is a Solar Hijri date picked from three wheels. No calendar
// validation is applied.
type DateOfBirth struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Picker bounds for the date-of-birth wheels.
const (
	MinBirthYear = 1323
	MaxBirthYear = 1402
)

// DefaultDateOfBirth is preselected on the date-of-birth wheels.
var DefaultDateOfBirth = DateOfBirth{Day: 1, Month: 1, Year: 1370}

// InPickerRange reports whether every component is selectable on the wheels.
func (d DateOfBirth) InPickerRange() bool {
	return d.Day >= 1 && d.Day <= 31 &&
		d.Month >= 1 && d.Month <= 12 &&
		d.Year >= MinBirthYear && d.Year <= MaxBirthYear
}

// AccountDetails is what a bank account inquiry returns for display.
type AccountDetails struct {
	HolderName  string `json:"holder_name"`
	AccountType string `json:"account_type"`
	Sheba       string `json:"sheba"`
	BankName    string `json:"bank_name"`
}

// Record accumulates the merchant's answers across the flow. Each step writes
// only its own fields.
type Record struct {
	PhoneNumber string      `json:"phone_number"`
	OTPCode     string      `json:"otp_code"`
	NationalID  string      `json:"national_id"`
	DateOfBirth DateOfBirth `json:"date_of_birth"`

	DocumentType     DocumentType `json:"document_type,omitempty"`
	SmartCardFront   *ImageRef    `json:"smart_card_front,omitempty"`
	SmartCardBack    *ImageRef    `json:"smart_card_back,omitempty"`
	CertificateCode  string       `json:"certificate_code"`
	BirthCertificate *ImageRef    `json:"birth_certificate,omitempty"`

	PostalCode       string `json:"postal_code"`
	BusinessCategory string `json:"business_category"`
	Address          string `json:"address"`

	BankAccountIdentifier string          `json:"bank_account_identifier"`
	AccountHolderName     string          `json:"account_holder_name"`
	Account               *AccountDetails `json:"account,omitempty"`
}

// NewRecord returns an empty record with the wheel defaults and the
// pre-filled address.
func NewRecord(address string) Record {
	return Record{
		DateOfBirth: DefaultDateOfBirth,
		Address:     address,
	}
}

// Image returns the handle stored in slot, or nil.
func (r *Record) Image(slot ImageSlot) *ImageRef {
	switch slot {
	case SlotSmartCardFront:
		return r.SmartCardFront
	case SlotSmartCardBack:
		return r.SmartCardBack
	case SlotBirthCertificate:
		return r.BirthCertificate
	}
	return nil
}

// SetImage stores ref in slot and returns the handle it replaced.
func (r *Record) SetImage(slot ImageSlot, ref *ImageRef) (previous *ImageRef) {
	switch slot {
	case SlotSmartCardFront:
		previous, r.SmartCardFront = r.SmartCardFront, ref
	case SlotSmartCardBack:
		previous, r.SmartCardBack = r.SmartCardBack, ref
	case SlotBirthCertificate:
		previous, r.BirthCertificate = r.BirthCertificate, ref
	}
	return previous
}

// Images returns every image handle currently held by the record.
func (r *Record) Images() []ImageRef {
	var out []ImageRef
	for _, ref := range []*ImageRef{r.SmartCardFront, r.SmartCardBack, r.BirthCertificate} {
		if ref != nil {
			out = append(out, *ref)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r Record) Clone() Record {
	out := r
	out.SmartCardFront = cloneRef(r.SmartCardFront)
	out.SmartCardBack = cloneRef(r.SmartCardBack)
	out.BirthCertificate = cloneRef(r.BirthCertificate)
	if r.Account != nil {
		acc := *r.Account
		out.Account = &acc
	}
	return out
}

func cloneRef(ref *ImageRef) *ImageRef {
	if ref == nil {
		return nil
	}
	c := *ref
	return &c
}
