package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nittei/nittei/internal/domain"
)

type createAccountRequest struct {
	Code string `json:"code"`
}

type createAccountResponse struct {
	Account      *domain.Account `json:"account"`
	SecretAPIKey string          `json:"secretApiKey"`
}

// CreateAccount registers a new account and returns its secret api key.
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body createAccountRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if s.opts.CreateAccountSecretCode != "" && body.Code != s.opts.CreateAccountSecretCode {
		unauthorized(w, "invalid account creation code")
		return
	}

	account := domain.NewAccount()
	if err := s.accounts.Insert(r.Context(), account); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, createAccountResponse{
		Account:      account,
		SecretAPIKey: account.SecretAPIKey,
	})
}

// GetAccount returns the authenticated account.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

type setPublicKeyRequest struct {
	// PublicJwtKey is a PEM-encoded RSA public key; null clears it.
	PublicJwtKey *string `json:"publicJwtKey"`
}

// SetAccountPublicKey installs or clears the key user bearer tokens are
// validated against.
func (s *Server) SetAccountPublicKey(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body setPublicKeyRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if body.PublicJwtKey != nil {
		if _, err := jwt.ParseRSAPublicKeyFromPEM([]byte(*body.PublicJwtKey)); err != nil {
			badClientData(w, "publicJwtKey is not a valid PEM-encoded RSA public key")
			return
		}
	}

	account.PublicJWTKey = body.PublicJwtKey
	if err := s.accounts.Save(r.Context(), account); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

type setWebhookRequest struct {
	WebhookURL string `json:"webhookUrl" validate:"required,url"`
}

// SetAccountWebhook registers the endpoint due reminders are delivered
// to.
func (s *Server) SetAccountWebhook(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body setWebhookRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	account.SetWebhook(body.WebhookURL)
	if err := s.accounts.Save(r.Context(), account); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// DeleteAccountWebhook clears the webhook settings.
func (s *Server) DeleteAccountWebhook(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	account.Webhook = nil
	if err := s.accounts.Save(r.Context(), account); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

type addIntegrationRequest struct {
	Provider     domain.IntegrationProvider `json:"provider" validate:"required"`
	ClientID     string                     `json:"clientId" validate:"required"`
	ClientSecret string                     `json:"clientSecret" validate:"required"`
	RedirectURI  string                     `json:"redirectUri" validate:"required,url"`
}

// AddAccountIntegration registers an OAuth client for a provider.
func (s *Server) AddAccountIntegration(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body addIntegrationRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if !body.Provider.Valid() {
		badClientData(w, "invalid provider")
		return
	}

	integration := &domain.AccountIntegration{
		AccountID:    account.ID,
		Provider:     body.Provider,
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
		RedirectURI:  body.RedirectURI,
	}
	if err := s.accounts.AddIntegration(r.Context(), integration); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, integration)
}

// RemoveAccountIntegration deletes a provider integration.
func (s *Server) RemoveAccountIntegration(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	provider := domain.IntegrationProvider(chi.URLParam(r, "provider"))
	if !provider.Valid() {
		badClientData(w, "invalid provider")
		return
	}
	if err := s.accounts.RemoveIntegration(r.Context(), account.ID, provider); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
