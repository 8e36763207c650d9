package users

import (
	"time"

	"github.com/google/uuid"

	"wikiloult/app/internal/domain/identity"
)

// Identity is the persisted record of a cookie that registered. Edits is
// append-only and ordered by insertion.
type Identity struct {
	Cookie          string
	ShortID         string
	Allowed         bool
	RegisteredAt    time.Time
	Edits           []EditRef
	EditCount       int
	ProfileMarkdown string
	ProfileHTML     string
}

// EditRef points at one edit authored by an identity.
type EditRef struct {
	EditID   uuid.UUID
	PageName string
	EditedAt time.Time
}

// Member pairs an identity with its derived persona.
type Member struct {
	Identity Identity
	Persona  identity.Persona
}
