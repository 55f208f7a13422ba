// Package cognito implements the remote credential client against AWS
// Cognito user pools.
package cognito

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/rleekg/craft-cognito/internal/domain"
	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/provider"
)

// api is the subset of the Cognito identity provider API the client
// uses. Satisfied by *cip.Client.
type api interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, opts ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, opts ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, opts ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, opts ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, opts ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, opts ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, in *cip.AdminUpdateUserAttributesInput, opts ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
	AdminDisableUser(ctx context.Context, in *cip.AdminDisableUserInput, opts ...func(*cip.Options)) (*cip.AdminDisableUserOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, opts ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
}

// Client implements provider.Client against a Cognito user pool.
type Client struct {
	api        api
	clientID   string
	userPoolID string
	logger     *slog.Logger
}

var _ provider.Client = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the given region, credential profile, app
// client, and user pool. Credentials come from the default AWS chain.
func New(ctx context.Context, region, profile, clientID, userPoolID string, opts ...Option) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	c := &Client{
		api:        cip.NewFromConfig(awsCfg),
		clientID:   clientID,
		userPoolID: userPoolID,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Signup creates the remote account. The local user is created only on
// first verified login, not here.
func (c *Client) Signup(ctx context.Context, params provider.SignupParams) (*provider.SignupResult, error) {
	username := params.Username
	if username == "" {
		username = params.Email
	}

	attrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(params.Email)},
	}
	if params.FirstName != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("given_name"), Value: aws.String(params.FirstName)})
	}
	if params.LastName != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("family_name"), Value: aws.String(params.LastName)})
	}
	if params.Phone != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(params.Phone)})
	}

	out, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(c.clientID),
		Username:       aws.String(username),
		Password:       aws.String(params.Password),
		UserAttributes: attrs,
	})
	if err != nil {
		return nil, c.wrapError("signup", err)
	}

	return &provider.SignupResult{
		UserSub:   aws.ToString(out.UserSub),
		Confirmed: out.UserConfirmed,
	}, nil
}

// ConfirmSignup submits the emailed confirmation code.
func (c *Client) ConfirmSignup(ctx context.Context, email, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
	})
	if err != nil {
		return c.wrapError("confirm signup", err)
	}
	return nil
}

// ResendConfirmationCode requests a new confirmation code.
func (c *Client) ResendConfirmationCode(ctx context.Context, email string) error {
	_, err := c.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(email),
	})
	if err != nil {
		return c.wrapError("resend confirmation", err)
	}
	return nil
}

// Authenticate exchanges credentials for tokens.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*domain.TokenSet, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		ClientId: aws.String(c.clientID),
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	})
	if err != nil {
		var notAuthorized *types.NotAuthorizedException
		var userNotFound *types.UserNotFoundException
		if errors.As(err, &notAuthorized) || errors.As(err, &userNotFound) {
			// Don't reveal whether the account exists
			return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeAuthenticationFailed, "invalid credentials")
		}
		return nil, c.wrapError("authenticate", err)
	}

	return tokenSet(out.AuthenticationResult)
}

// RefreshAuthentication exchanges a refresh token for new tokens. The
// response carries no new refresh token; the original stays valid.
func (c *Client) RefreshAuthentication(ctx context.Context, email, refreshToken string) (*domain.TokenSet, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		ClientId: aws.String(c.clientID),
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		var notAuthorized *types.NotAuthorizedException
		if errors.As(err, &notAuthorized) {
			return nil, bridgeerrors.Wrap(err, bridgeerrors.CodeSessionExpired, "refresh token is invalid or expired")
		}
		return nil, c.wrapError("refresh authentication", err)
	}

	return tokenSet(out.AuthenticationResult)
}

// SendPasswordResetMail triggers the provider's reset email.
func (c *Client) SendPasswordResetMail(ctx context.Context, email string) error {
	_, err := c.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(email),
	})
	if err != nil {
		return c.wrapError("send password reset", err)
	}
	return nil
}

// ResetPassword submits the reset code with the new password.
func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	_, err := c.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
	})
	if err != nil {
		return c.wrapError("reset password", err)
	}
	return nil
}

// UpdateUserAttributes updates the remote account's attributes. Only
// non-empty fields are sent.
func (c *Client) UpdateUserAttributes(ctx context.Context, username string, params provider.UpdateParams) error {
	attrs := updateAttributes(params)
	if len(attrs) == 0 {
		return nil
	}

	_, err := c.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(c.userPoolID),
		Username:       aws.String(username),
		UserAttributes: attrs,
	})
	if err != nil {
		return c.wrapError("update user attributes", err)
	}
	return nil
}

// DisableUser disables the remote account.
func (c *Client) DisableUser(ctx context.Context, email string) error {
	_, err := c.api.AdminDisableUser(ctx, &cip.AdminDisableUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(email),
	})
	if err != nil {
		return c.wrapError("disable user", err)
	}
	return nil
}

// DeleteUser deletes the remote account.
func (c *Client) DeleteUser(ctx context.Context, email string) error {
	_, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(email),
	})
	if err != nil {
		return c.wrapError("delete user", err)
	}
	return nil
}

func updateAttributes(params provider.UpdateParams) []types.AttributeType {
	var attrs []types.AttributeType
	if params.Email != "" {
		attrs = append(attrs,
			types.AttributeType{Name: aws.String("email"), Value: aws.String(params.Email)},
			// A changed address must be re-verified out of band for
			// tokens to keep carrying it; mark it verified so login
			// keeps working meanwhile.
			types.AttributeType{Name: aws.String("email_verified"), Value: aws.String("true")},
		)
	}
	if params.FirstName != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("given_name"), Value: aws.String(params.FirstName)})
	}
	if params.LastName != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("family_name"), Value: aws.String(params.LastName)})
	}
	if params.Phone != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(params.Phone)})
	}
	return attrs
}

func tokenSet(result *types.AuthenticationResultType) (*domain.TokenSet, error) {
	if result == nil {
		return nil, bridgeerrors.New(bridgeerrors.CodeRemoteProvider,
			"provider returned no authentication result")
	}
	return &domain.TokenSet{
		IDToken:      aws.ToString(result.IdToken),
		AccessToken:  aws.ToString(result.AccessToken),
		RefreshToken: aws.ToString(result.RefreshToken),
		ExpiresIn:    result.ExpiresIn,
	}, nil
}

// wrapError converts an SDK failure into the structured taxonomy,
// keeping the provider's error code and message verbatim.
func (c *Client) wrapError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		c.logger.Debug("provider call failed",
			"op", op, "code", apiErr.ErrorCode(), "message", apiErr.ErrorMessage())
		return bridgeerrors.Provider(err, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return bridgeerrors.Wrap(err, bridgeerrors.CodeRemoteProvider, op+" failed")
}
