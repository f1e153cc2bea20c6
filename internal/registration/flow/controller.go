package flow

import (
	"fmt"
	"sync"
	"time"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/clock"
	"onboarding/pkg/platform/sentinel"
)

// Face verification timing.
const (
	DefaultScanDelay   = 3000 * time.Millisecond
	DefaultSettleDelay = 1500 * time.Millisecond
)

// DefaultExpectedHolderName is the legal name bank accounts must be registered to.
const DefaultExpectedHolderName = "علی علوی"

// Outcome describes what a navigation call did.
type Outcome string

const (
	OutcomeMoved     Outcome = "moved"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeCompleted Outcome = "completed"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeClosed    Outcome = "closed"
)

// Cause says what triggered a step change.
type Cause string

const (
	CauseAdvance   Cause = "advance"
	CauseBack      Cause = "back"
	CauseSelection Cause = "selection"
	CauseAuto      Cause = "auto"
)

// Listener receives the controller's caller-facing notifications. Calls are
// made without the controller lock held.
type Listener interface {
	OnStepChanged(from, to models.Step, cause Cause)
	OnFlowAbandoned()
	OnFlowCompleted(record models.Record)
}

// ImageReleaser frees the blob behind an image handle.
type ImageReleaser interface {
	Release(imageID id.ImageID)
}

// AccountLookup resolves a card number or Sheba to account details.
type AccountLookup interface {
	Lookup(identifier string) (models.AccountDetails, bool)
}

// Field names a record field that a single step owns.
type Field string

const (
	FieldPhoneNumber           Field = "phone_number"
	FieldOTPCode               Field = "otp_code"
	FieldNationalID            Field = "national_id"
	FieldDateOfBirth           Field = "date_of_birth"
	FieldCertificateCode       Field = "certificate_code"
	FieldPostalCode            Field = "postal_code"
	FieldBusinessCategory      Field = "business_category"
	FieldBankAccountIdentifier Field = "bank_account_identifier"
	FieldAccountHolderName     Field = "account_holder_name"
	FieldContractAccepted      Field = "contract_accepted"
)

var fieldOwners = map[Field]models.Step{
	FieldPhoneNumber:           models.StepPhoneNumber,
	FieldOTPCode:               models.StepOTP,
	FieldNationalID:            models.StepNationalID,
	FieldDateOfBirth:           models.StepDateOfBirth,
	FieldCertificateCode:       models.StepCertificateUpload,
	FieldPostalCode:            models.StepAddressAndBusiness,
	FieldBusinessCategory:      models.StepAddressAndBusiness,
	FieldBankAccountIdentifier: models.StepBankAccount,
	FieldAccountHolderName:     models.StepBankAccountConfirm,
	FieldContractAccepted:      models.StepContractView,
}

var slotOwners = map[models.ImageSlot]models.Step{
	models.SlotSmartCardFront:   models.StepSmartCardUpload,
	models.SlotSmartCardBack:    models.StepSmartCardUpload,
	models.SlotBirthCertificate: models.StepCertificateUpload,
}

// OwnerOf returns the step on which field may be edited.
func OwnerOf(field Field) (models.Step, bool) {
	step, ok := fieldOwners[field]
	return step, ok
}

// Snapshot is a consistent copy of controller state.
type Snapshot struct {
	Step             models.Step
	Record           models.Record
	CanAdvance       bool
	FaceStatus       models.FaceStatus
	ContractAccepted bool
	Closed           bool
}

// Controller drives one merchant through the registration steps. It is safe
// for concurrent use; the face verification timers call back on their own
// goroutine.
type Controller struct {
	mu sync.Mutex

	step     models.Step
	record   models.Record
	accepted bool
	face     models.FaceStatus
	scan     *faceScan
	closed   bool
	lookedUp string

	clock        clock.Clock
	listener     Listener
	releaser     ImageReleaser
	lookup       AccountLookup
	expectedName string
	scanDelay    time.Duration
	settleDelay  time.Duration

	outbox []func(Listener)
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

func WithListener(l Listener) Option {
	return func(ctrl *Controller) { ctrl.listener = l }
}

func WithImageReleaser(r ImageReleaser) Option {
	return func(ctrl *Controller) { ctrl.releaser = r }
}

func WithAccountLookup(l AccountLookup) Option {
	return func(ctrl *Controller) { ctrl.lookup = l }
}

// WithExpectedHolderName overrides the name BankAccountConfirm compares against.
func WithExpectedHolderName(name string) Option {
	return func(ctrl *Controller) { ctrl.expectedName = name }
}

// WithAddress sets the pre-filled, read-only address.
func WithAddress(address string) Option {
	return func(ctrl *Controller) { ctrl.record.Address = address }
}

// WithFaceDelays overrides the scan and settle delays of face verification.
func WithFaceDelays(scan, settle time.Duration) Option {
	return func(ctrl *Controller) {
		ctrl.scanDelay = scan
		ctrl.settleDelay = settle
	}
}

// New returns a controller positioned at Intro.
func New(opts ...Option) *Controller {
	c := &Controller{
		step:         models.StepIntro,
		record:       models.NewRecord(""),
		clock:        clock.Real{},
		expectedName: DefaultExpectedHolderName,
		scanDelay:    DefaultScanDelay,
		settleDelay:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Step returns the current step.
func (c *Controller) Step() models.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// CanAdvance reports whether Advance would leave the current step.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canAdvanceLocked()
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Step:             c.step,
		Record:           c.record.Clone(),
		CanAdvance:       c.canAdvanceLocked(),
		FaceStatus:       c.face,
		ContractAccepted: c.accepted,
		Closed:           c.closed,
	}
}

// Advance moves forward when the current step's guard holds. A failing guard
// is a no-op reported as OutcomeBlocked. Advancing from the terminal step
// completes the flow.
func (c *Controller) Advance() Outcome {
	c.mu.Lock()
	outcome := c.advanceLocked()
	c.unlockAndNotify()
	return outcome
}

func (c *Controller) advanceLocked() Outcome {
	if c.closed {
		return OutcomeClosed
	}
	if !c.canAdvanceLocked() {
		return OutcomeBlocked
	}
	if IsTerminal(c.step) {
		record := c.record.Clone()
		c.closeLocked()
		c.emit(func(l Listener) { l.OnFlowCompleted(record) })
		return OutcomeCompleted
	}
	next, ok := Next(c.step)
	if !ok {
		return OutcomeBlocked
	}
	c.moveLocked(next, CauseAdvance)
	return OutcomeMoved
}

// Back moves to the predecessor step. Back from Intro abandons the flow
// without a transition; back from the terminal step is a no-op.
func (c *Controller) Back() Outcome {
	c.mu.Lock()
	outcome := c.backLocked()
	c.unlockAndNotify()
	return outcome
}

func (c *Controller) backLocked() Outcome {
	if c.closed {
		return OutcomeClosed
	}
	if IsInitial(c.step) {
		c.closeLocked()
		c.emit(func(l Listener) { l.OnFlowAbandoned() })
		return OutcomeAbandoned
	}
	prev, ok := Prev(c.step, c.record.DocumentType)
	if !ok {
		return OutcomeBlocked
	}
	c.moveLocked(prev, CauseBack)
	return OutcomeMoved
}

// SelectDocumentType records the document type and moves to its upload step.
// It is the only way to leave IdTypeSelection forward.
func (c *Controller) SelectDocumentType(doc models.DocumentType) (Outcome, error) {
	c.mu.Lock()
	outcome, err := c.selectLocked(doc)
	c.unlockAndNotify()
	return outcome, err
}

func (c *Controller) selectLocked(doc models.DocumentType) (Outcome, error) {
	if c.closed {
		return OutcomeClosed, errClosed()
	}
	if c.step != models.StepIDTypeSelection {
		return OutcomeBlocked, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("document type cannot be selected on step %s", c.step))
	}
	upload, ok := UploadStepFor(doc)
	if !ok {
		return OutcomeBlocked, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown document type %q", doc))
	}
	c.record.DocumentType = doc
	c.moveLocked(upload, CauseSelection)
	return OutcomeMoved, nil
}

func (c *Controller) SetPhoneNumber(v string) error {
	return c.edit(FieldPhoneNumber, func(r *models.Record) error { r.PhoneNumber = v; return nil })
}

func (c *Controller) SetOTPCode(v string) error {
	return c.edit(FieldOTPCode, func(r *models.Record) error { r.OTPCode = v; return nil })
}

func (c *Controller) SetNationalID(v string) error {
	return c.edit(FieldNationalID, func(r *models.Record) error { r.NationalID = v; return nil })
}

// SetDateOfBirth accepts any combination the picker wheels can show.
func (c *Controller) SetDateOfBirth(v models.DateOfBirth) error {
	return c.edit(FieldDateOfBirth, func(r *models.Record) error {
		if !v.InPickerRange() {
			return dErrors.New(dErrors.CodeBadRequest, "date of birth outside picker range")
		}
		r.DateOfBirth = v
		return nil
	})
}

// SetCertificateCode stores the code as entered. Validation upper-cases a
// copy, so a lower-case code passes the guard but is kept lower-case.
func (c *Controller) SetCertificateCode(v string) error {
	return c.edit(FieldCertificateCode, func(r *models.Record) error { r.CertificateCode = v; return nil })
}

func (c *Controller) SetPostalCode(v string) error {
	return c.edit(FieldPostalCode, func(r *models.Record) error { r.PostalCode = v; return nil })
}

// SetBusinessCategory accepts a catalog entry, or "" to clear the choice.
func (c *Controller) SetBusinessCategory(v string) error {
	return c.edit(FieldBusinessCategory, func(r *models.Record) error {
		if v != "" && !models.IsBusinessCategory(v) {
			return dErrors.New(dErrors.CodeBadRequest, "unknown business category")
		}
		r.BusinessCategory = v
		return nil
	})
}

func (c *Controller) SetBankAccountIdentifier(v string) error {
	return c.edit(FieldBankAccountIdentifier, func(r *models.Record) error { r.BankAccountIdentifier = v; return nil })
}

func (c *Controller) SetAccountHolderName(v string) error {
	return c.edit(FieldAccountHolderName, func(r *models.Record) error { r.AccountHolderName = v; return nil })
}

// SetContractAccepted flips the agreement toggle on ContractView.
func (c *Controller) SetContractAccepted(v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOwnerLocked(string(FieldContractAccepted), fieldOwners[FieldContractAccepted]); err != nil {
		return err
	}
	c.accepted = v
	return nil
}

// AttachImage stores ref in slot and releases the image it replaces.
func (c *Controller) AttachImage(slot models.ImageSlot, ref models.ImageRef) error {
	owner, ok := slotOwners[slot]
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown image slot %q", slot))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOwnerLocked(string(slot), owner); err != nil {
		return err
	}
	if previous := c.record.SetImage(slot, &ref); previous != nil && previous.ID != ref.ID {
		c.release(previous.ID)
	}
	return nil
}

// Close tears the controller down without notifying the listener: pending
// timers are cancelled and every image is released. It reports whether the
// controller was still open.
func (c *Controller) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closeLocked()
	return true
}

func (c *Controller) edit(field Field, apply func(*models.Record) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOwnerLocked(string(field), fieldOwners[field]); err != nil {
		return err
	}
	return apply(&c.record)
}

func (c *Controller) checkOwnerLocked(field string, owner models.Step) error {
	if c.closed {
		return errClosed()
	}
	if c.step != owner {
		return dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("%s cannot be edited on step %s", field, c.step))
	}
	return nil
}

func (c *Controller) canAdvanceLocked() bool {
	if c.closed || c.step == models.StepIDTypeSelection {
		return false
	}
	return CanLeave(c.step, GuardInput{
		Record:             c.record,
		ContractAccepted:   c.accepted,
		ExpectedHolderName: c.expectedName,
	})
}

func (c *Controller) moveLocked(to models.Step, cause Cause) {
	from := c.step
	c.cancelScanLocked()
	c.step = to
	switch to {
	case models.StepFaceVerification:
		c.startScanLocked()
	case models.StepBankAccountConfirm:
		c.lookupAccountLocked()
	}
	c.emit(func(l Listener) { l.OnStepChanged(from, to, cause) })
}

func (c *Controller) lookupAccountLocked() {
	if c.lookup == nil {
		return
	}
	identifier := c.record.BankAccountIdentifier
	if c.lookedUp == identifier && c.record.Account != nil {
		return
	}
	c.lookedUp = identifier
	details, ok := c.lookup.Lookup(identifier)
	if !ok {
		c.record.Account = nil
		c.record.AccountHolderName = ""
		return
	}
	c.record.Account = &details
	c.record.AccountHolderName = details.HolderName
}

func (c *Controller) closeLocked() {
	c.cancelScanLocked()
	for _, img := range c.record.Images() {
		c.release(img.ID)
	}
	c.record.SmartCardFront = nil
	c.record.SmartCardBack = nil
	c.record.BirthCertificate = nil
	c.closed = true
}

func (c *Controller) release(imageID id.ImageID) {
	if c.releaser != nil {
		c.releaser.Release(imageID)
	}
}

func (c *Controller) emit(note func(Listener)) {
	if c.listener != nil {
		c.outbox = append(c.outbox, note)
	}
}

// unlockAndNotify releases c.mu and then delivers queued notifications.
func (c *Controller) unlockAndNotify() {
	notes := c.outbox
	c.outbox = nil
	listener := c.listener
	c.mu.Unlock()
	for _, note := range notes {
		note(listener)
	}
}

func errClosed() error {
	return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict, "registration flow is closed")
}
