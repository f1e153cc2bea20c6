package flow

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"onboarding/internal/registration/models"
)

var certificateCodePattern = regexp.MustCompile(`^[A-Z][0-9]{9}$`)

// GuardInput is everything a forward guard may look at.
type GuardInput struct {
	Record             models.Record
	ContractAccepted   bool
	ExpectedHolderName string
}

// Guard decides whether the current step may be left forward.
type Guard func(GuardInput) bool

// guards holds the forward predicate of every step that has one. Steps
// without an entry advance unconditionally.
var guards = map[models.Step]Guard{
	models.StepPhoneNumber: func(in GuardInput) bool {
		return strings.HasPrefix(in.Record.PhoneNumber, "09") && length(in.Record.PhoneNumber) == 11
	},
	models.StepOTP: func(in GuardInput) bool {
		return length(in.Record.OTPCode) == 6
	},
	models.StepNationalID: func(in GuardInput) bool {
		return length(in.Record.NationalID) == 10
	},
	models.StepSmartCardUpload: func(in GuardInput) bool {
		return in.Record.SmartCardFront != nil && in.Record.SmartCardBack != nil
	},
	models.StepCertificateUpload: func(in GuardInput) bool {
		return ValidCertificateCode(in.Record.CertificateCode) && in.Record.BirthCertificate != nil
	},
	models.StepAddressAndBusiness: func(in GuardInput) bool {
		return length(in.Record.PostalCode) == 10 && in.Record.BusinessCategory != ""
	},
	models.StepBankAccount: func(in GuardInput) bool {
		return length(in.Record.BankAccountIdentifier) > 15
	},
	models.StepBankAccountConfirm: func(in GuardInput) bool {
		return in.Record.AccountHolderName == in.ExpectedHolderName
	},
	models.StepContractView: func(in GuardInput) bool {
		return in.ContractAccepted
	},
}

// CanLeave evaluates the forward guard of step.
func CanLeave(step models.Step, in GuardInput) bool {
	guard, ok := guards[step]
	if !ok {
		return true
	}
	return guard(in)
}

// ValidCertificateCode checks the upper-cased form of code; the stored value
// keeps whatever case was entered.
func ValidCertificateCode(code string) bool {
	return certificateCodePattern.MatchString(strings.ToUpper(code))
}

// length counts characters the way the entry fields do, so Persian digits
// count once each.
func length(s string) int {
	return utf8.RuneCountInString(s)
}
