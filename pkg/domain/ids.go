package domain

import (
	"github.com/google/uuid"

	dErrors "onboarding/pkg/domain-errors"
)

// SessionID identifies one in-progress registration flow.
type SessionID uuid.UUID

// ImageID identifies an uploaded document image held by a registration record.
type ImageID uuid.UUID

// NewSessionID returns a random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewImageID returns a random image ID.
func NewImageID() ImageID { return ImageID(uuid.New()) }

// ParseSessionID parses and validates a session ID at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session ID")
	return SessionID(u), err
}

// ParseImageID parses and validates an image ID at a trust boundary.
func ParseImageID(s string) (ImageID, error) {
	u, err := parseUUID(s, "image ID")
	return ImageID(u), err
}

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ImageID) String() string { return uuid.UUID(id).String() }
func (id ImageID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings.
func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ImageID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be nil")
	}
	return u, nil
}
