package flow

import "onboarding/internal/registration/models"

// The step graph is expressed as lookup tables. Only two edges depend on
// input: the forward edge out of IdTypeSelection and the back edge out of
// AddressAndBusiness; both resolve through uploadSteps.

// forward maps a step to its fixed successor. IdTypeSelection and
// ContractSigned have no entry.
var forward = map[models.Step]models.Step{
	models.StepIntro:              models.StepPhoneNumber,
	models.StepPhoneNumber:        models.StepOTP,
	models.StepOTP:                models.StepNationalID,
	models.StepNationalID:         models.StepDateOfBirth,
	models.StepDateOfBirth:        models.StepIDTypeSelection,
	models.StepSmartCardUpload:    models.StepAddressAndBusiness,
	models.StepCertificateUpload:  models.StepAddressAndBusiness,
	models.StepAddressAndBusiness: models.StepAddressConfirm,
	models.StepAddressConfirm:     models.StepBankAccount,
	models.StepBankAccount:        models.StepBankAccountConfirm,
	models.StepBankAccountConfirm: models.StepSuccess,
	models.StepSuccess:            models.StepContractView,
	models.StepContractView:       models.StepFaceVerification,
	models.StepFaceVerification:   models.StepContractSigned,
}

// backward maps a step to its fixed predecessor. Intro, AddressAndBusiness and
// ContractSigned have no entry.
var backward = map[models.Step]models.Step{
	models.StepPhoneNumber:        models.StepIntro,
	models.StepOTP:                models.StepPhoneNumber,
	models.StepNationalID:         models.StepOTP,
	models.StepDateOfBirth:        models.StepNationalID,
	models.StepIDTypeSelection:    models.StepDateOfBirth,
	models.StepSmartCardUpload:    models.StepIDTypeSelection,
	models.StepCertificateUpload:  models.StepIDTypeSelection,
	models.StepAddressConfirm:     models.StepAddressAndBusiness,
	models.StepBankAccount:        models.StepAddressConfirm,
	models.StepBankAccountConfirm: models.StepBankAccount,
	models.StepSuccess:            models.StepBankAccountConfirm,
	models.StepContractView:       models.StepSuccess,
	models.StepFaceVerification:   models.StepContractView,
}

// uploadSteps maps each selectable document type to its upload step.
var uploadSteps = map[models.DocumentType]models.Step{
	models.DocumentSmartCard:   models.StepSmartCardUpload,
	models.DocumentCertificate: models.StepCertificateUpload,
}

// Next returns the fixed successor of step. It reports false for
// IdTypeSelection, whose successor is chosen by selection, and for the
// terminal step.
func Next(step models.Step) (models.Step, bool) {
	next, ok := forward[step]
	return next, ok
}

// Prev returns the predecessor of step given the recorded document type.
// It reports false for Intro and ContractSigned.
func Prev(step models.Step, doc models.DocumentType) (models.Step, bool) {
	if step == models.StepAddressAndBusiness {
		if upload, ok := uploadSteps[doc]; ok {
			return upload, true
		}
		return models.StepCertificateUpload, true
	}
	prev, ok := backward[step]
	return prev, ok
}

// UploadStepFor returns the upload step reached by selecting doc.
func UploadStepFor(doc models.DocumentType) (models.Step, bool) {
	step, ok := uploadSteps[doc]
	return step, ok
}

// IsInitial reports whether step starts the flow.
func IsInitial(step models.Step) bool { return step == models.StepIntro }

// IsTerminal reports whether step ends the flow.
func IsTerminal(step models.Step) bool { return step == models.StepContractSigned }
