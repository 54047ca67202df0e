// Package accounts manages external marketplace account links, encrypting
// OAuth token material at rest via the token vault (§4.1).
package accounts

import (
	"context"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/accountlink"
	"github.com/r3e-network/vinylwatch/internal/app/services/tokenvault"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// Service manages ExternalAccountLink rows. Callers supply already-obtained
// OAuth tokens (the authorization-code/client-credentials exchange itself is
// an HTTP API concern, out of scope here); this service's job is making sure
// nothing but an envelope ever reaches storage.
type Service struct {
	Links storage.AccountLinkStore
	Vault *tokenvault.Vault
}

// New builds an accounts.Service.
func New(links storage.AccountLinkStore, vault *tokenvault.Vault) *Service {
	return &Service{Links: links, Vault: vault}
}

// Link creates or replaces the (user, provider) account link, encrypting
// accessToken/refreshToken before they reach storage.
func (s *Service) Link(ctx context.Context, userID, provider, externalUserID, accessToken, refreshToken, tokenType string, scopes []string, expiresAt *time.Time) (accountlink.ExternalAccountLink, error) {
	subject := userID + ":" + provider

	encryptedAccess, err := s.Vault.Encrypt(subject, accessToken)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}
	encryptedRefresh, err := s.Vault.Encrypt(subject, refreshToken)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}

	existing, found, err := s.Links.GetAccountLink(ctx, userID, provider)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}

	link := accountlink.ExternalAccountLink{
		UserID:               userID,
		Provider:             provider,
		ExternalUserID:       externalUserID,
		AccessToken:          encryptedAccess,
		RefreshToken:         encryptedRefresh,
		AccessTokenExpiresAt: expiresAt,
		TokenType:            tokenType,
		Scopes:               scopes,
		ConnectedAt:          time.Now().UTC(),
	}

	if found {
		link.ID = existing.ID
		link.ConnectedAt = existing.ConnectedAt
		return s.Links.UpdateAccountLink(ctx, link)
	}
	return s.Links.CreateAccountLink(ctx, link)
}

// AccessToken decrypts and returns the plain access token for (userID,
// provider), lazily upgrading a legacy plaintext row to an envelope.
func (s *Service) AccessToken(ctx context.Context, userID, provider string) (string, error) {
	link, found, err := s.Links.GetAccountLink(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}

	subject := userID + ":" + provider
	result, err := s.Vault.Decrypt(subject, link.AccessToken)
	if err != nil {
		return "", err
	}
	if result.RequiresMigration && result.Plaintext != "" {
		if upgraded, err := s.Vault.Encrypt(subject, result.Plaintext); err == nil {
			link.AccessToken = upgraded
			_, _ = s.Links.UpdateAccountLink(ctx, link)
		}
	}
	return result.Plaintext, nil
}

// Get returns the raw (still-encrypted) account link row.
func (s *Service) Get(ctx context.Context, userID, provider string) (accountlink.ExternalAccountLink, bool, error) {
	return s.Links.GetAccountLink(ctx, userID, provider)
}

// List returns every account link for userID.
func (s *Service) List(ctx context.Context, userID string) ([]accountlink.ExternalAccountLink, error) {
	return s.Links.ListAccountLinks(ctx, userID)
}
