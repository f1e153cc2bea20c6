package flow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/clock"
)

type transition struct {
	from, to models.Step
	cause    Cause
}

type recordingListener struct {
	mu          sync.Mutex
	transitions []transition
	abandoned   int
	completed   []models.Record
}

func (l *recordingListener) OnStepChanged(from, to models.Step, cause Cause) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, transition{from, to, cause})
}

func (l *recordingListener) OnFlowAbandoned() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.abandoned++
}

func (l *recordingListener) OnFlowCompleted(record models.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, record)
}

type recordingReleaser struct {
	released []id.ImageID
}

func (r *recordingReleaser) Release(imageID id.ImageID) {
	r.released = append(r.released, imageID)
}

type staticLookup struct {
	calls   int
	details models.AccountDetails
}

func (s *staticLookup) Lookup(string) (models.AccountDetails, bool) {
	s.calls++
	return s.details, true
}

type ControllerSuite struct {
	suite.Suite
	clock    *clock.Fake
	listener *recordingListener
	releaser *recordingReleaser
	lookup   *staticLookup
	ctrl     *Controller
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC))
	s.listener = &recordingListener{}
	s.releaser = &recordingReleaser{}
	s.lookup = &staticLookup{details: models.AccountDetails{
		HolderName:  DefaultExpectedHolderName,
		AccountType: "سپرده کوتاه مدت",
		Sheba:       "IR123456789012345678901234",
		BankName:    "سامان",
	}}
	s.ctrl = New(
		WithClock(s.clock),
		WithListener(s.listener),
		WithImageReleaser(s.releaser),
		WithAccountLookup(s.lookup),
		WithAddress("تهران، خیابان آزادی"),
	)
}

func image() models.ImageRef {
	return models.ImageRef{ID: id.NewImageID(), ContentType: "image/jpeg", Size: 512}
}

// fillTo drives the controller forward with valid input until it reaches target.
func (s *ControllerSuite) fillTo(target models.Step, doc models.DocumentType) {
	require := s.Require()
	for s.ctrl.Step() != target {
		switch s.ctrl.Step() {
		case models.StepPhoneNumber:
			require.NoError(s.ctrl.SetPhoneNumber("09123456789"))
		case models.StepOTP:
			require.NoError(s.ctrl.SetOTPCode("123456"))
		case models.StepNationalID:
			require.NoError(s.ctrl.SetNationalID("0012345678"))
		case models.StepIDTypeSelection:
			outcome, err := s.ctrl.SelectDocumentType(doc)
			require.NoError(err)
			require.Equal(OutcomeMoved, outcome)
			continue
		case models.StepSmartCardUpload:
			require.NoError(s.ctrl.AttachImage(models.SlotSmartCardFront, image()))
			require.NoError(s.ctrl.AttachImage(models.SlotSmartCardBack, image()))
		case models.StepCertificateUpload:
			require.NoError(s.ctrl.SetCertificateCode("A123456789"))
			require.NoError(s.ctrl.AttachImage(models.SlotBirthCertificate, image()))
		case models.StepAddressAndBusiness:
			require.NoError(s.ctrl.SetPostalCode("1234567890"))
			require.NoError(s.ctrl.SetBusinessCategory("داروخانه"))
		case models.StepBankAccount:
			require.NoError(s.ctrl.SetBankAccountIdentifier("6037991234567890"))
		case models.StepContractView:
			require.NoError(s.ctrl.SetContractAccepted(true))
		}
		require.Equal(OutcomeMoved, s.ctrl.Advance(), "advance from %s", s.ctrl.Step())
	}
}

func (s *ControllerSuite) TestStartsAtIntro() {
	snap := s.ctrl.Snapshot()
	s.Equal(models.StepIntro, snap.Step)
	s.True(snap.CanAdvance)
	s.Equal(models.DefaultDateOfBirth, snap.Record.DateOfBirth)
	s.Equal("تهران، خیابان آزادی", snap.Record.Address)
}

func (s *ControllerSuite) TestPhoneNumberGuard() {
	s.fillTo(models.StepPhoneNumber, models.DocumentSmartCard)

	s.Run("ten digits block", func() {
		s.Require().NoError(s.ctrl.SetPhoneNumber("0912345678"))
		s.False(s.ctrl.CanAdvance())
		s.Equal(OutcomeBlocked, s.ctrl.Advance())
		s.Equal(models.StepPhoneNumber, s.ctrl.Step())
	})

	s.Run("eleven digits with 09 prefix pass", func() {
		s.Require().NoError(s.ctrl.SetPhoneNumber("09123456789"))
		s.True(s.ctrl.CanAdvance())
		s.Equal(OutcomeMoved, s.ctrl.Advance())
		s.Equal(models.StepOTP, s.ctrl.Step())
	})
}

func (s *ControllerSuite) TestGuardViolationLeavesStateUntouched() {
	s.fillTo(models.StepNationalID, models.DocumentSmartCard)
	before := s.ctrl.Snapshot()
	transitions := len(s.listener.transitions)

	s.Equal(OutcomeBlocked, s.ctrl.Advance())

	s.Equal(before, s.ctrl.Snapshot())
	s.Len(s.listener.transitions, transitions)
}

func (s *ControllerSuite) TestCertificateUploadGuard() {
	s.fillTo(models.StepCertificateUpload, models.DocumentCertificate)
	require := s.Require()

	require.NoError(s.ctrl.SetCertificateCode("a123456789"))
	s.False(s.ctrl.CanAdvance(), "image missing")

	require.NoError(s.ctrl.AttachImage(models.SlotBirthCertificate, image()))
	s.True(s.ctrl.CanAdvance(), "lower-case code passes once upper-cased")
	s.Equal("a123456789", s.ctrl.Snapshot().Record.CertificateCode)

	require.NoError(s.ctrl.SetCertificateCode("1234567890"))
	s.False(s.ctrl.CanAdvance(), "code must start with a letter")
}

func (s *ControllerSuite) TestDocumentTypeBranches() {
	s.Run("smart card", func() {
		s.SetupTest()
		s.fillTo(models.StepIDTypeSelection, models.DocumentSmartCard)
		s.False(s.ctrl.CanAdvance())
		s.Equal(OutcomeBlocked, s.ctrl.Advance())

		_, err := s.ctrl.SelectDocumentType(models.DocumentSmartCard)
		s.Require().NoError(err)
		s.Equal(models.StepSmartCardUpload, s.ctrl.Step())
		s.Equal(OutcomeMoved, s.ctrl.Back())
		s.Equal(models.StepIDTypeSelection, s.ctrl.Step())
	})

	s.Run("certificate", func() {
		s.SetupTest()
		s.fillTo(models.StepIDTypeSelection, models.DocumentCertificate)
		_, err := s.ctrl.SelectDocumentType(models.DocumentCertificate)
		s.Require().NoError(err)
		s.Equal(models.StepCertificateUpload, s.ctrl.Step())
		s.Equal(OutcomeMoved, s.ctrl.Back())
		s.Equal(models.StepIDTypeSelection, s.ctrl.Step())
	})

	s.Run("unknown type is rejected", func() {
		s.SetupTest()
		s.fillTo(models.StepIDTypeSelection, models.DocumentSmartCard)
		_, err := s.ctrl.SelectDocumentType(models.DocumentType("passport"))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Equal(models.StepIDTypeSelection, s.ctrl.Step())
	})

	s.Run("selection off the selection step conflicts", func() {
		s.SetupTest()
		_, err := s.ctrl.SelectDocumentType(models.DocumentSmartCard)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ControllerSuite) TestAddressAndBusinessBackEdgeFollowsDocumentType() {
	for _, tc := range []struct {
		doc  models.DocumentType
		want models.Step
	}{
		{models.DocumentSmartCard, models.StepSmartCardUpload},
		{models.DocumentCertificate, models.StepCertificateUpload},
	} {
		s.Run(string(tc.doc), func() {
			s.SetupTest()
			s.fillTo(models.StepAddressAndBusiness, tc.doc)
			s.Equal(OutcomeMoved, s.ctrl.Back())
			s.Equal(tc.want, s.ctrl.Step())
		})
	}
}

func (s *ControllerSuite) TestBackThenForwardReturnsWithFieldsUnchanged() {
	skip := map[models.Step]bool{
		models.StepIntro:            true,
		models.StepIDTypeSelection:  true,
		models.StepFaceVerification: true,
		models.StepContractSigned:   true,
	}
	for _, step := range models.Steps() {
		if skip[step] {
			continue
		}
		doc := models.DocumentSmartCard
		if step == models.StepCertificateUpload {
			doc = models.DocumentCertificate
		}
		s.Run(step.String(), func() {
			s.SetupTest()
			s.fillTo(step, doc)
			before := s.ctrl.Snapshot().Record

			s.Require().Equal(OutcomeMoved, s.ctrl.Back())
			if s.ctrl.Step() == models.StepIDTypeSelection {
				_, err := s.ctrl.SelectDocumentType(doc)
				s.Require().NoError(err)
			} else {
				s.Require().Equal(OutcomeMoved, s.ctrl.Advance())
			}

			s.Equal(step, s.ctrl.Step())
			s.Equal(before, s.ctrl.Snapshot().Record)
		})
	}
}

func (s *ControllerSuite) TestFieldOwnership() {
	s.fillTo(models.StepOTP, models.DocumentSmartCard)

	err := s.ctrl.SetPhoneNumber("09999999999")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("09123456789", s.ctrl.Snapshot().Record.PhoneNumber)

	err = s.ctrl.AttachImage(models.SlotSmartCardFront, image())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ControllerSuite) TestDateOfBirthPickerBounds() {
	s.fillTo(models.StepDateOfBirth, models.DocumentSmartCard)

	s.NoError(s.ctrl.SetDateOfBirth(models.DateOfBirth{Day: 31, Month: 12, Year: 1402}))
	s.NoError(s.ctrl.SetDateOfBirth(models.DateOfBirth{Day: 31, Month: 7, Year: 1323}))
	err := s.ctrl.SetDateOfBirth(models.DateOfBirth{Day: 1, Month: 1, Year: 1403})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.Equal(models.DateOfBirth{Day: 31, Month: 7, Year: 1323}, s.ctrl.Snapshot().Record.DateOfBirth)
}

func (s *ControllerSuite) TestBusinessCategoryMustComeFromCatalog() {
	s.fillTo(models.StepAddressAndBusiness, models.DocumentSmartCard)

	err := s.ctrl.SetBusinessCategory("قایق سازی")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.NoError(s.ctrl.SetBusinessCategory("نانوایی"))
}

func (s *ControllerSuite) TestReplacingImageReleasesPrevious() {
	s.fillTo(models.StepSmartCardUpload, models.DocumentSmartCard)
	first, second := image(), image()

	s.Require().NoError(s.ctrl.AttachImage(models.SlotSmartCardFront, first))
	s.Require().NoError(s.ctrl.AttachImage(models.SlotSmartCardFront, second))

	s.Equal([]id.ImageID{first.ID}, s.releaser.released)
	s.Equal(second.ID, s.ctrl.Snapshot().Record.SmartCardFront.ID)
}

func (s *ControllerSuite) TestBankAccountInquiry() {
	s.fillTo(models.StepBankAccountConfirm, models.DocumentSmartCard)

	snap := s.ctrl.Snapshot()
	s.True(snap.CanAdvance)
	s.Equal(DefaultExpectedHolderName, snap.Record.AccountHolderName)
	s.Require().NotNil(snap.Record.Account)
	s.Equal("سامان", snap.Record.Account.BankName)
	s.Equal(1, s.lookup.calls)

	s.Run("re-entry with the same identifier keeps the inquiry", func() {
		s.Require().Equal(OutcomeMoved, s.ctrl.Back())
		s.Require().Equal(OutcomeMoved, s.ctrl.Advance())
		s.Equal(1, s.lookup.calls)
	})

	s.Run("changed identifier repeats the inquiry", func() {
		s.Require().Equal(OutcomeMoved, s.ctrl.Back())
		s.Require().NoError(s.ctrl.SetBankAccountIdentifier("IR123456789012345678901234"))
		s.Require().Equal(OutcomeMoved, s.ctrl.Advance())
		s.Equal(2, s.lookup.calls)
	})

	s.Run("holder name must match", func() {
		s.Require().NoError(s.ctrl.SetAccountHolderName("رضا رضایی"))
		s.False(s.ctrl.CanAdvance())
	})
}

func (s *ControllerSuite) TestFaceVerificationAutoAdvance() {
	s.fillTo(models.StepFaceVerification, models.DocumentSmartCard)
	s.Equal(models.FaceStatusScanning, s.ctrl.FaceStatus())

	s.clock.Advance(2999 * time.Millisecond)
	s.Equal(models.FaceStatusScanning, s.ctrl.FaceStatus())

	s.clock.Advance(time.Millisecond)
	s.Equal(models.FaceStatusSuccess, s.ctrl.FaceStatus())
	s.Equal(models.StepFaceVerification, s.ctrl.Step())

	s.clock.Advance(1499 * time.Millisecond)
	s.Equal(models.StepFaceVerification, s.ctrl.Step())

	s.clock.Advance(time.Millisecond)
	s.Equal(models.StepContractSigned, s.ctrl.Step())
	s.Zero(s.clock.Pending())

	last := s.listener.transitions[len(s.listener.transitions)-1]
	s.Equal(transition{models.StepFaceVerification, models.StepContractSigned, CauseAuto}, last)
}

func (s *ControllerSuite) TestFaceVerificationCancelledOnBack() {
	s.fillTo(models.StepFaceVerification, models.DocumentSmartCard)
	s.clock.Advance(2 * time.Second)

	s.Require().Equal(OutcomeMoved, s.ctrl.Back())
	s.Zero(s.clock.Pending())
	s.Equal(models.FaceStatusIdle, s.ctrl.FaceStatus())

	s.clock.Advance(10 * time.Second)
	s.Equal(models.StepContractView, s.ctrl.Step())

	s.Run("re-entry restarts both delays", func() {
		s.Require().Equal(OutcomeMoved, s.ctrl.Advance())
		s.Equal(models.FaceStatusScanning, s.ctrl.FaceStatus())
		s.clock.Advance(2999 * time.Millisecond)
		s.Equal(models.FaceStatusScanning, s.ctrl.FaceStatus())
		s.clock.Advance(1501 * time.Millisecond)
		s.Equal(models.StepContractSigned, s.ctrl.Step())
	})
}

func (s *ControllerSuite) TestFaceVerificationCancelledAfterSuccess() {
	s.fillTo(models.StepFaceVerification, models.DocumentSmartCard)
	s.clock.Advance(3200 * time.Millisecond)
	s.Require().Equal(models.FaceStatusSuccess, s.ctrl.FaceStatus())

	s.Require().Equal(OutcomeMoved, s.ctrl.Back())
	s.clock.Advance(5 * time.Second)
	s.Equal(models.StepContractView, s.ctrl.Step())
}

func (s *ControllerSuite) TestAbandonFromIntroFiresOnce() {
	s.Equal(OutcomeAbandoned, s.ctrl.Back())
	s.Equal(OutcomeClosed, s.ctrl.Back())
	s.Equal(OutcomeClosed, s.ctrl.Advance())

	s.Equal(1, s.listener.abandoned)
	s.Empty(s.listener.transitions)
	s.True(s.ctrl.Snapshot().Closed)
}

func (s *ControllerSuite) TestCompletionFiresOnceWithFullRecord() {
	s.fillTo(models.StepFaceVerification, models.DocumentCertificate)
	s.clock.Advance(4500 * time.Millisecond)
	s.Require().Equal(models.StepContractSigned, s.ctrl.Step())

	s.Equal(OutcomeBlocked, s.ctrl.Back())
	s.Equal(OutcomeCompleted, s.ctrl.Advance())
	s.Equal(OutcomeClosed, s.ctrl.Advance())

	s.Require().Len(s.listener.completed, 1)
	record := s.listener.completed[0]
	s.Equal("09123456789", record.PhoneNumber)
	s.Equal("123456", record.OTPCode)
	s.Equal("0012345678", record.NationalID)
	s.Equal(models.DocumentCertificate, record.DocumentType)
	s.Equal("A123456789", record.CertificateCode)
	s.NotNil(record.BirthCertificate)
	s.Equal("1234567890", record.PostalCode)
	s.Equal("داروخانه", record.BusinessCategory)
	s.Equal(DefaultExpectedHolderName, record.AccountHolderName)

	s.Len(s.releaser.released, 1, "closing releases the held image")
}

func (s *ControllerSuite) TestCloseIsSilentAndCancelsTimers() {
	s.fillTo(models.StepFaceVerification, models.DocumentSmartCard)

	s.True(s.ctrl.Close())
	s.False(s.ctrl.Close())
	s.Zero(s.clock.Pending())
	s.Len(s.releaser.released, 2)
	s.Zero(s.listener.abandoned)
	s.Empty(s.listener.completed)

	err := s.ctrl.SetPhoneNumber("09123456789")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestControllerWithoutListener(t *testing.T) {
	ctrl := New()
	assert.Equal(t, OutcomeMoved, ctrl.Advance())
	assert.Equal(t, OutcomeMoved, ctrl.Back())
	assert.Equal(t, OutcomeAbandoned, ctrl.Back())
}
