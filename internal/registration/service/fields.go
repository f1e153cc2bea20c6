package service

import (
	"context"
	"fmt"

	"onboarding/internal/registration/flow"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// FieldUpdate is a partial update of the current step's fields. Nil members
// are left alone.
type FieldUpdate struct {
	PhoneNumber           *string
	OTPCode               *string
	NationalID            *string
	DateOfBirth           *models.DateOfBirth
	CertificateCode       *string
	PostalCode            *string
	BusinessCategory      *string
	BankAccountIdentifier *string
	AccountHolderName     *string
	ContractAccepted      *bool
}

type fieldSetter struct {
	field flow.Field
	apply func(*flow.Controller) error
}

// setters lists the present fields. Fields whose setter can reject a value
// come before their step siblings so a rejection leaves the record as it was.
func (u FieldUpdate) setters() []fieldSetter {
	var out []fieldSetter
	add := func(field flow.Field, present bool, apply func(*flow.Controller) error) {
		if present {
			out = append(out, fieldSetter{field: field, apply: apply})
		}
	}
	add(flow.FieldDateOfBirth, u.DateOfBirth != nil, func(c *flow.Controller) error { return c.SetDateOfBirth(*u.DateOfBirth) })
	add(flow.FieldBusinessCategory, u.BusinessCategory != nil, func(c *flow.Controller) error { return c.SetBusinessCategory(*u.BusinessCategory) })
	add(flow.FieldPhoneNumber, u.PhoneNumber != nil, func(c *flow.Controller) error { return c.SetPhoneNumber(*u.PhoneNumber) })
	add(flow.FieldOTPCode, u.OTPCode != nil, func(c *flow.Controller) error { return c.SetOTPCode(*u.OTPCode) })
	add(flow.FieldNationalID, u.NationalID != nil, func(c *flow.Controller) error { return c.SetNationalID(*u.NationalID) })
	add(flow.FieldCertificateCode, u.CertificateCode != nil, func(c *flow.Controller) error { return c.SetCertificateCode(*u.CertificateCode) })
	add(flow.FieldPostalCode, u.PostalCode != nil, func(c *flow.Controller) error { return c.SetPostalCode(*u.PostalCode) })
	add(flow.FieldBankAccountIdentifier, u.BankAccountIdentifier != nil, func(c *flow.Controller) error {
		return c.SetBankAccountIdentifier(*u.BankAccountIdentifier)
	})
	add(flow.FieldAccountHolderName, u.AccountHolderName != nil, func(c *flow.Controller) error {
		return c.SetAccountHolderName(*u.AccountHolderName)
	})
	add(flow.FieldContractAccepted, u.ContractAccepted != nil, func(c *flow.Controller) error { return c.SetContractAccepted(*u.ContractAccepted) })
	return out
}

// UpdateFields writes the given fields. Every field must belong to the
// current step; otherwise nothing is written and a conflict is returned.
func (s *Service) UpdateFields(ctx context.Context, sessionID id.SessionID, update FieldUpdate) (*View, error) {
	ctx, span := s.startSpan(ctx, "registration.UpdateFields")
	defer span.End()

	setters := update.setters()
	if len(setters) == 0 {
		return nil, s.fail(span, dErrors.New(dErrors.CodeBadRequest, "no fields to update"))
	}
	sess, err := s.touch(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	step := sess.Flow.Step()
	for _, set := range setters {
		owner, _ := flow.OwnerOf(set.field)
		if owner != step {
			return nil, s.fail(span, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("%s cannot be edited on step %s", set.field, step)))
		}
	}
	for _, set := range setters {
		if err := set.apply(sess.Flow); err != nil {
			return nil, s.fail(span, err)
		}
	}
	return newView(sessionID, sess.Flow.Snapshot(), ""), nil
}
