// Package bridge orchestrates account lifecycle operations against the
// remote provider and keeps the local user record in sync.
//
// Every operation is a thin two-step protocol: delegate the
// authoritative action to the remote credential client, then reconcile
// the local record. Authorization checks run before any remote call.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/metrics"
	"github.com/rleekg/craft-cognito/internal/provider"
	"github.com/rleekg/craft-cognito/internal/store"
)

// LoginHook is a post-processing function run after a successful
// authentication. Hooks run in order; the first failure aborts the
// remaining ones and surfaces to the caller.
type LoginHook func(ctx context.Context, email string, tokens *domain.TokenSet) error

// Service exposes the account lifecycle operations.
type Service struct {
	remote provider.Client
	users  store.LocalUserStore
	logger *slog.Logger

	requireUserPassword bool

	// Authorization-code exchange settings
	providerDomain string
	clientID       string
	callbackURL    string
	httpClient     *http.Client
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRequireUserPassword makes profile updates require the account
// password and a successful re-authentication.
func WithRequireUserPassword(required bool) Option {
	return func(s *Service) {
		s.requireUserPassword = required
	}
}

// WithCodeExchange configures the authorization-code exchange endpoint
// used by the callback flow.
func WithCodeExchange(providerDomain, clientID, callbackURL string) Option {
	return func(s *Service) {
		s.providerDomain = providerDomain
		s.clientID = clientID
		s.callbackURL = callbackURL
	}
}

// WithHTTPClient sets the HTTP client used for the code exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// NewService creates a bridge Service.
func NewService(remote provider.Client, users store.LocalUserStore, opts ...Option) *Service {
	s := &Service{
		remote:     remote,
		users:      users,
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register creates the remote account and returns the provider's
// subject for it. No local user is created until first verified login.
func (s *Service) Register(ctx context.Context, params provider.SignupParams) (string, error) {
	result, err := s.remote.Signup(ctx, params)
	metrics.RecordLifecycleOp("register", err)
	if err != nil {
		return "", err
	}

	s.logger.Info("remote account registered", "email", params.Email, "sub", result.UserSub)
	return result.UserSub, nil
}

// ConfirmSignup submits the confirmation code for a pending account.
func (s *Service) ConfirmSignup(ctx context.Context, email, code string) error {
	err := s.remote.ConfirmSignup(ctx, email, code)
	metrics.RecordLifecycleOp("confirm_signup", err)
	return err
}

// ResendConfirmation requests a new confirmation code.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	err := s.remote.ResendConfirmationCode(ctx, email)
	metrics.RecordLifecycleOp("resend_confirmation", err)
	return err
}

// Authenticate exchanges credentials for tokens and runs the supplied
// hooks on success. Local resolution happens later, when the issued
// token is first verified.
func (s *Service) Authenticate(ctx context.Context, email, password string, hooks ...LoginHook) (*domain.TokenSet, error) {
	tokens, err := s.remote.Authenticate(ctx, email, password)
	metrics.RecordLifecycleOp("authenticate", err)
	if err != nil {
		return nil, err
	}

	for _, hook := range hooks {
		if err := hook(ctx, email, tokens); err != nil {
			s.logger.Warn("post-login hook failed", "email", email, "error", err)
			return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeInternal, "post-login hook failed")
		}
	}

	s.logger.Info("user authenticated", "email", email)
	return tokens, nil
}

// RefreshToken exchanges a refresh token for new tokens.
func (s *Service) RefreshToken(ctx context.Context, email, refreshToken string) (*domain.TokenSet, error) {
	tokens, err := s.remote.RefreshAuthentication(ctx, email, refreshToken)
	metrics.RecordLifecycleOp("refresh_token", err)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// RequestPasswordReset triggers the provider's reset email.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	err := s.remote.SendPasswordResetMail(ctx, email)
	metrics.RecordLifecycleOp("request_password_reset", err)
	return err
}

// ResetPassword submits the reset code with the new password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	err := s.remote.ResetPassword(ctx, email, code, newPassword)
	metrics.RecordLifecycleOp("reset_password", err)
	return err
}

// UpdateParams carries a profile update request. Password is only
// consulted when the service requires re-authentication for updates.
type UpdateParams struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Password  string
}

// UpdateProfile updates the remote account's attributes and mirrors
// them onto the matching local user. A missing local user is not an
// error; the record simply does not exist yet.
func (s *Service) UpdateProfile(ctx context.Context, caller *domain.LocalUser, params UpdateParams) error {
	if err := s.authorize(caller, params.Username); err != nil {
		metrics.RecordLifecycleOp("update_profile", err)
		return err
	}

	if s.requireUserPassword {
		if params.Password == "" {
			err := bridgeerrors.InvalidInput("password is required")
			metrics.RecordLifecycleOp("update_profile", err)
			return err
		}
		if _, err := s.remote.Authenticate(ctx, params.Username, params.Password); err != nil {
			metrics.RecordLifecycleOp("update_profile", err)
			// Only a rejected credential becomes authentication_failed;
			// provider outages and other failures keep their own code so
			// callers can tell a retryable failure from a wrong password.
			if bridgeerrors.IsCode(err, bridgeerrors.CodeAuthenticationFailed) {
				return bridgeerrors.Wrap(err, bridgeerrors.CodeAuthenticationFailed, "password check failed")
			}
			return err
		}
	}

	err := s.remote.UpdateUserAttributes(ctx, params.Username, provider.UpdateParams{
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Phone:     params.Phone,
	})
	metrics.RecordLifecycleOp("update_profile", err)
	if err != nil {
		return err
	}

	user, lookupErr := s.users.FindByUsernameOrEmail(ctx, params.Username)
	if lookupErr != nil {
		if bridgeerrors.IsCode(lookupErr, bridgeerrors.CodeNotFound) {
			return nil
		}
		return bridgeerrors.Wrap(lookupErr, bridgeerrors.CodeInternal, "local user lookup failed")
	}

	if params.FirstName != "" {
		user.FirstName = params.FirstName
	}
	if params.LastName != "" {
		user.LastName = params.LastName
	}
	if params.Email != "" {
		user.Email = params.Email
	}
	if err := s.users.Save(ctx, user); err != nil {
		return bridgeerrors.Wrap(err, bridgeerrors.CodeInternal, "failed to mirror profile update")
	}

	s.logger.Info("profile updated", "username", params.Username)
	return nil
}

// DisableAccount disables the remote account. The local record is kept.
func (s *Service) DisableAccount(ctx context.Context, caller *domain.LocalUser, email string) error {
	if err := s.authorize(caller, email); err != nil {
		metrics.RecordLifecycleOp("disable_account", err)
		return err
	}

	err := s.remote.DisableUser(ctx, email)
	metrics.RecordLifecycleOp("disable_account", err)
	if err != nil {
		return err
	}

	s.logger.Info("remote account disabled", "email", email)
	return nil
}

// DeleteAccount deletes the remote account and removes the matching
// local user if one exists.
func (s *Service) DeleteAccount(ctx context.Context, caller *domain.LocalUser, email string) error {
	if err := s.authorize(caller, email); err != nil {
		metrics.RecordLifecycleOp("delete_account", err)
		return err
	}

	err := s.remote.DeleteUser(ctx, email)
	metrics.RecordLifecycleOp("delete_account", err)
	if err != nil {
		return err
	}

	user, lookupErr := s.users.FindByUsernameOrEmail(ctx, email)
	if lookupErr != nil {
		if bridgeerrors.IsCode(lookupErr, bridgeerrors.CodeNotFound) {
			return nil
		}
		return bridgeerrors.Wrap(lookupErr, bridgeerrors.CodeInternal, "local user lookup failed")
	}

	if err := s.users.Delete(ctx, user); err != nil {
		return bridgeerrors.Wrap(err, bridgeerrors.CodeInternal, "failed to delete local user")
	}

	s.logger.Info("account deleted", "email", email)
	return nil
}

// authorize enforces the admin-or-self rule shared by update, disable,
// and delete. It runs before any remote or local mutation.
func (s *Service) authorize(caller *domain.LocalUser, target string) error {
	if caller == nil {
		return bridgeerrors.Unauthorized("no authenticated caller")
	}
	if caller.Admin {
		return nil
	}
	if target != "" && (caller.Username == target || caller.Email == target) {
		return nil
	}
	return bridgeerrors.Unauthorized("caller may only act on their own account")
}

// ExchangeAuthorizationCode completes the hosted-UI redirect flow by
// exchanging an authorization code for tokens at the provider's token
// endpoint.
func (s *Service) ExchangeAuthorizationCode(ctx context.Context, code string) (*domain.TokenSet, error) {
	if s.providerDomain == "" {
		return nil, bridgeerrors.New(bridgeerrors.CodeInvalidInput,
			"authorization-code exchange is not configured")
	}

	tokens, err := s.exchangeCode(ctx, code)
	metrics.RecordLifecycleOp("code_exchange", err)
	return tokens, err
}

func (s *Service) exchangeCode(ctx context.Context, code string) (*domain.TokenSet, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"client_id":    {s.clientID},
		"redirect_uri": {s.callbackURL},
	}

	endpoint := strings.TrimSuffix(s.providerDomain, "/") + "/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeInternal, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeRemoteProvider, "token exchange failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeRemoteProvider, "failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		return nil, bridgeerrors.Provider(nil, oauthErr.Error,
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode))
	}

	var payload struct {
		IDToken      string `json:"id_token"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int32  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeRemoteProvider, "invalid token response")
	}

	return &domain.TokenSet{
		IDToken:      payload.IDToken,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}
