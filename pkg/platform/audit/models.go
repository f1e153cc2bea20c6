package audit

import (
	"time"

	id "onboarding/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance, such as a
	// merchant finishing or abandoning registration.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to abuse monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that may be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It carries no
// form data; only identifiers and outcomes.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	SessionID id.SessionID
	Action    string
	Step      string
	Reason    string
	IP        string
	RequestID string
}

type AuditEvent string

const (
	// Registration events
	EventSessionStarted       AuditEvent = "registration_started"
	EventDocumentTypeSelected AuditEvent = "document_type_selected"
	EventImageAttached        AuditEvent = "image_attached"
	EventRegistrationDone     AuditEvent = "registration_completed"
	EventRegistrationAborted  AuditEvent = "registration_abandoned"
	EventSessionExpired       AuditEvent = "registration_expired"

	// Rate limit events
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationDone:    CategoryCompliance,
	EventRegistrationAborted: CategoryCompliance,
	EventSessionExpired:      CategoryCompliance,

	EventRateLimitExceeded: CategorySecurity,

	EventSessionStarted:       CategoryOperations,
	EventDocumentTypeSelected: CategoryOperations,
	EventImageAttached:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
