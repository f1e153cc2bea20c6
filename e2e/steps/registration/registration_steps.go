package registration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context registration steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PATCH(path string, body any) error
	PutImage(path, contentType string, data []byte) error
	GetLastResponseStatus() int
	GetResponseField(field string) (any, error)
	GetSessionID() string
	SetSessionID(sessionID string)
}

// pngHeader is enough of a PNG for the upload endpoint, which only checks
// the declared content type.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrationSteps{tc: tc}

	ctx.Step(`^I start a registration session$`, steps.startSession)
	ctx.Step(`^I fetch the registration session$`, steps.fetchSession)
	ctx.Step(`^I advance the registration$`, steps.advance)
	ctx.Step(`^I go back in the registration$`, steps.back)
	ctx.Step(`^I set "([^"]*)" to "([^"]*)"$`, steps.setField)
	ctx.Step(`^I set the date of birth to (\d+)/(\d+)/(\d+)$`, steps.setDateOfBirth)
	ctx.Step(`^I accept the contract$`, steps.acceptContract)
	ctx.Step(`^I enter the expected account holder name$`, steps.enterHolderName)
	ctx.Step(`^I select the "([^"]*)" document type$`, steps.selectDocumentType)
	ctx.Step(`^I upload a "([^"]*)" image to "([^"]*)"$`, steps.uploadImage)
	ctx.Step(`^the registration should be at step "([^"]*)"$`, steps.shouldBeAtStep)
	ctx.Step(`^the registration should be able to advance$`, steps.shouldBeAbleToAdvance)
	ctx.Step(`^the registration should not be able to advance$`, steps.shouldNotBeAbleToAdvance)
	ctx.Step(`^the registration outcome should be "([^"]*)"$`, steps.outcomeShouldBe)
	ctx.Step(`^the registration session should be gone within (\d+) seconds$`, steps.sessionGoneWithin)
	ctx.Step(`^I have completed identity verification with a certificate$`, steps.completedIdentity)
}

type registrationSteps struct {
	tc TestContext
}

func (s *registrationSteps) sessionPath(suffix string) string {
	return "/registration/sessions/" + s.tc.GetSessionID() + suffix
}

func (s *registrationSteps) startSession(ctx context.Context) error {
	if err := s.tc.POST("/registration/sessions", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 201 {
		return fmt.Errorf("start session: expected 201, got %d", status)
	}
	sessionID, err := s.tc.GetResponseField("session_id")
	if err != nil {
		return err
	}
	s.tc.SetSessionID(fmt.Sprint(sessionID))
	return nil
}

func (s *registrationSteps) fetchSession(ctx context.Context) error {
	return s.tc.GET(s.sessionPath(""))
}

func (s *registrationSteps) advance(ctx context.Context) error {
	return s.tc.POST(s.sessionPath("/advance"), nil)
}

func (s *registrationSteps) back(ctx context.Context) error {
	return s.tc.POST(s.sessionPath("/back"), nil)
}

func (s *registrationSteps) setField(ctx context.Context, field, value string) error {
	return s.tc.PATCH(s.sessionPath("/fields"), map[string]any{field: value})
}

func (s *registrationSteps) setDateOfBirth(ctx context.Context, day, month, year int) error {
	return s.tc.PATCH(s.sessionPath("/fields"), map[string]any{
		"date_of_birth": map[string]int{"day": day, "month": month, "year": year},
	})
}

func (s *registrationSteps) acceptContract(ctx context.Context) error {
	return s.tc.PATCH(s.sessionPath("/fields"), map[string]any{"contract_accepted": true})
}

func (s *registrationSteps) enterHolderName(ctx context.Context) error {
	name := os.Getenv("E2E_EXPECTED_HOLDER_NAME")
	if name == "" {
		name = "علی علوی"
	}
	return s.setField(ctx, "account_holder_name", name)
}

func (s *registrationSteps) selectDocumentType(ctx context.Context, documentType string) error {
	return s.tc.POST(s.sessionPath("/document-type"), map[string]string{"document_type": documentType})
}

func (s *registrationSteps) uploadImage(ctx context.Context, contentType, slot string) error {
	return s.tc.PutImage(s.sessionPath("/images/"+slot), contentType, pngHeader)
}

func (s *registrationSteps) shouldBeAtStep(ctx context.Context, step string) error {
	got, err := s.tc.GetResponseField("step")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != step {
		return fmt.Errorf("expected step %q, got %v", step, got)
	}
	return nil
}

func (s *registrationSteps) shouldBeAbleToAdvance(ctx context.Context) error {
	return s.canAdvanceShouldBe(true)
}

func (s *registrationSteps) shouldNotBeAbleToAdvance(ctx context.Context) error {
	return s.canAdvanceShouldBe(false)
}

func (s *registrationSteps) canAdvanceShouldBe(want bool) error {
	got, err := s.tc.GetResponseField("can_advance")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected can_advance=%v, got %v", want, got)
	}
	return nil
}

func (s *registrationSteps) outcomeShouldBe(ctx context.Context, outcome string) error {
	got, err := s.tc.GetResponseField("outcome")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != outcome {
		return fmt.Errorf("expected outcome %q, got %v", outcome, got)
	}
	return nil
}

// sessionGoneWithin polls until the session answers 404, which happens once
// the face scan completes the flow on its own.
func (s *registrationSteps) sessionGoneWithin(ctx context.Context, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	for time.Now().Before(deadline) {
		if err := s.fetchSession(ctx); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == 404 {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("session %s still present after %ds", s.tc.GetSessionID(), seconds)
}

// completedIdentity drives a fresh session from Intro to AddressAndBusiness
// along the certificate branch.
func (s *registrationSteps) completedIdentity(ctx context.Context) error {
	actions := []func() error{
		func() error { return s.startSession(ctx) },
		func() error { return s.advance(ctx) },
		func() error { return s.setField(ctx, "phone_number", "09123456789") },
		func() error { return s.advance(ctx) },
		func() error { return s.setField(ctx, "otp_code", "123456") },
		func() error { return s.advance(ctx) },
		func() error { return s.setField(ctx, "national_id", "0012345678") },
		func() error { return s.advance(ctx) },
		func() error { return s.advance(ctx) },
		func() error { return s.selectDocumentType(ctx, "certificate") },
		func() error { return s.setField(ctx, "certificate_code", "a123456789") },
		func() error { return s.uploadImage(ctx, "image/png", "birth_certificate") },
		func() error { return s.advance(ctx) },
	}
	for i, action := range actions {
		if err := action(); err != nil {
			return err
		}
		if status := s.tc.GetLastResponseStatus(); status >= 300 {
			return fmt.Errorf("identity step %d: unexpected status %d", i, status)
		}
	}
	step, err := s.tc.GetResponseField("step")
	if err != nil {
		return err
	}
	if !strings.EqualFold(fmt.Sprint(step), "address_and_business") {
		return fmt.Errorf("expected address_and_business, got %v", step)
	}
	return nil
}
