package service

import (
	"context"
	"errors"

	"onboarding/internal/notify"
	"onboarding/internal/registration/flow"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	audit "onboarding/pkg/platform/audit"
	"onboarding/pkg/platform/sentinel"
)

// sessionListener forwards one controller's notifications to the service.
type sessionListener struct {
	svc       *Service
	sessionID id.SessionID
}

func (l *sessionListener) OnStepChanged(from, to models.Step, cause flow.Cause) {
	if l.svc.metrics != nil {
		l.svc.metrics.IncrementTransition(to.String(), string(cause))
	}
	l.svc.logger.Debug("registration step changed",
		"session_id", l.sessionID.String(),
		"from", from.String(),
		"to", to.String(),
		"cause", string(cause),
	)
}

func (l *sessionListener) OnFlowAbandoned() {
	l.svc.finish(l.sessionID, notify.EventAbandoned, models.StepIntro, nil)
}

func (l *sessionListener) OnFlowCompleted(record models.Record) {
	l.svc.finish(l.sessionID, notify.EventCompleted, models.StepContractSigned, &record)
}

var outcomeActions = map[notify.EventType]audit.AuditEvent{
	notify.EventCompleted: audit.EventRegistrationDone,
	notify.EventAbandoned: audit.EventRegistrationAborted,
	notify.EventExpired:   audit.EventSessionExpired,
}

var outcomeLabels = map[notify.EventType]string{
	notify.EventCompleted: "completed",
	notify.EventAbandoned: "abandoned",
	notify.EventExpired:   "expired",
}

// finish removes a terminated session and reports it. Only the caller that
// wins the store removal reports, so each session ends exactly once.
func (s *Service) finish(sessionID id.SessionID, eventType notify.EventType, step models.Step, record *models.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	sess, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to remove finished session",
				"session_id", sessionID.String(),
				"error", err,
			)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveSessionFinished(outcomeLabels[eventType])
	}
	s.refreshImageGauge()
	s.audit(ctx, audit.Event{
		SessionID: sessionID,
		Action:    string(outcomeActions[eventType]),
		Step:      step.String(),
		IP:        sess.ClientIP,
	})

	event := notify.NewEvent(eventType, sessionID, step, s.clock.Now())
	event.Device = sess.Device
	event.Record = record
	if err := s.notifier.Publish(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementNotifyFailure(string(eventType))
		}
		s.logger.ErrorContext(ctx, "failed to publish registration event",
			"session_id", sessionID.String(),
			"event_type", string(eventType),
			"error", err,
		)
	}
	s.logger.InfoContext(ctx, "registration finished",
		"session_id", sessionID.String(),
		"outcome", outcomeLabels[eventType],
		"step", step.String(),
	)
}

// ExpireIdle tears down sessions untouched for longer than the idle TTL and
// reports how many it expired. A session that finished concurrently is
// skipped.
func (s *Service) ExpireIdle(ctx context.Context) (int, error) {
	ctx, span := s.startSpan(ctx, "registration.ExpireIdle")
	defer span.End()

	cutoff := s.clock.Now().Add(-s.idleTTL)
	idle, err := s.sessions.ListIdle(ctx, cutoff)
	if err != nil {
		return 0, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list idle sessions"))
	}

	expired := 0
	for _, sess := range idle {
		step := sess.Flow.Step()
		if !sess.Flow.Close() {
			continue
		}
		s.finish(sess.ID, notify.EventExpired, step, nil)
		expired++
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired idle registration sessions", "count", expired)
	}
	return expired, nil
}
