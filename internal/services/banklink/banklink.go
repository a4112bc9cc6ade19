// Package banklink is the account-linking collaborator used by the bank
// verification step. Only a simulator exists; a real provider can be
// plugged in behind Linker.
package banklink

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidPublicToken = errors.New("invalid public token")
	ErrMissingInstitution = errors.New("institution id is required")
)

type LinkToken struct {
	Token      string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

type Exchange struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

type Institution struct {
	InstitutionID string   `json:"institution_id"`
	Name          string   `json:"name"`
	Logo          string   `json:"logo"`
	URL           string   `json:"url"`
	CountryCodes  []string `json:"country_codes"`
	Products      []string `json:"products"`
}

type Linker interface {
	CreateLinkToken(ctx context.Context, userID uint) (*LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error)
	GetInstitutionByID(ctx context.Context, institutionID string) (*Institution, error)
}
