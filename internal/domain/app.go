package domain

import (
	"time"

	"github.com/google/uuid"
)

// App is a registered client application: the unit of authentication and
// data isolation.
type App struct {
	ID             uuid.UUID `json:"appId"`
	Name           string    `json:"name"`
	OwnerEmail     string    `json:"ownerEmail"`
	CredentialHash []byte    `json:"-"`
	Revoked        bool      `json:"revoked"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the app's credential is past its expiry at now.
func (a App) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now)
}

// NewApp contains the information needed to register an app.
type NewApp struct {
	Name       string
	OwnerEmail string
}
