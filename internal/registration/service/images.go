package service

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	audit "onboarding/pkg/platform/audit"
)

// AttachImage stores an uploaded document image and places its handle in
// slot. A handle already in the slot is released.
func (s *Service) AttachImage(ctx context.Context, sessionID id.SessionID, slot models.ImageSlot, contentType string, data []byte) (*View, error) {
	ctx, span := s.startSpan(ctx, "registration.AttachImage",
		attribute.String("session.id", sessionID.String()),
		attribute.String("slot", string(slot)),
		attribute.Int("size", len(data)),
	)
	defer span.End()

	if err := s.checkImage(contentType, data); err != nil {
		return nil, s.fail(span, err)
	}
	sess, err := s.touch(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	ref, err := s.images.Put(ctx, contentType, data)
	if err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store image"))
	}
	if err := sess.Flow.AttachImage(slot, ref); err != nil {
		s.images.Release(ref.ID)
		return nil, s.fail(span, err)
	}
	s.refreshImageGauge()

	s.audit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(audit.EventImageAttached),
		Step:      sess.Flow.Step().String(),
		Reason:    string(slot),
	})
	return newView(sessionID, sess.Flow.Snapshot(), ""), nil
}

func (s *Service) checkImage(contentType string, data []byte) error {
	if len(data) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "image is empty")
	}
	if int64(len(data)) > s.maxImageBytes {
		return dErrors.New(dErrors.CodePayloadTooLarge,
			fmt.Sprintf("image exceeds %d bytes", s.maxImageBytes))
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return dErrors.New(dErrors.CodeUnsupportedType, "only image uploads are accepted")
	}
	return nil
}
