package models

import (
	"fmt"
)

// Step identifies one screen of the merchant registration flow.
type Step int

const (
	StepIntro Step = iota
	StepPhoneNumber
	StepOTP
	StepNationalID
	StepDateOfBirth
	StepIDTypeSelection
	StepSmartCardUpload
	StepCertificateUpload
	StepAddressAndBusiness
	StepAddressConfirm
	StepBankAccount
	StepBankAccountConfirm
	StepSuccess
	StepContractView
	StepFaceVerification
	StepContractSigned
)

var stepNames = map[Step]string{
	StepIntro:              "intro",
	StepPhoneNumber:        "phone_number",
	StepOTP:                "otp",
	StepNationalID:         "national_id",
	StepDateOfBirth:        "date_of_birth",
	StepIDTypeSelection:    "id_type_selection",
	StepSmartCardUpload:    "smart_card_upload",
	StepCertificateUpload:  "certificate_upload",
	StepAddressAndBusiness: "address_and_business",
	StepAddressConfirm:     "address_confirm",
	StepBankAccount:        "bank_account",
	StepBankAccountConfirm: "bank_account_confirm",
	StepSuccess:            "success",
	StepContractView:       "contract_view",
	StepFaceVerification:   "face_verification",
	StepContractSigned:     "contract_signed",
}

// Steps lists every step in declaration order.
func Steps() []Step {
	out := make([]Step, 0, len(stepNames))
	for s := StepIntro; s <= StepContractSigned; s++ {
		out = append(out, s)
	}
	return out
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the declared steps.
func (s Step) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStep resolves a step from its wire name.
func ParseStep(name string) (Step, error) {
	for s, n := range stepNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", name)
}

// FaceStatus is the progress of the simulated face scan.
type FaceStatus string

const (
	FaceStatusIdle     FaceStatus = ""
	FaceStatusScanning FaceStatus = "scanning"
	FaceStatusSuccess  FaceStatus = "success"
)

// Milestone is one entry of the coarse progress tracker shown above the flow.
type Milestone struct {
	Step  Step   `json:"step"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Milestone states.
const (
	MilestoneCompleted = "completed"
	MilestoneActive    = "active"
	MilestonePending   = "pending"
)

var milestones = []struct {
	step Step
	name string
}{
	{StepIntro, "ثبت درخواست"},
	{StepAddressConfirm, "بررسی درخواست"},
	{StepContractView, "امضا قرارداد"},
	{StepContractSigned, "فعالسازی"},
}

// MilestonesAt reports the tracker state for the given current step. A milestone
// is completed once the flow has passed its step in declaration order.
func MilestonesAt(current Step) []Milestone {
	out := make([]Milestone, 0, len(milestones))
	for _, m := range milestones {
		state := MilestonePending
		switch {
		case m.step < current:
			state = MilestoneCompleted
		case m.step == current:
			state = MilestoneActive
		}
		out = append(out, Milestone{Step: m.step, Name: m.name, State: state})
	}
	return out
}
