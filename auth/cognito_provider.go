package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/model"
)

const (
	cognitoMetadataPrefix = "custom:"
	cognitoSubAttribute   = "sub"
	cognitoEmailAttribute = "email"
)

// cognitoAPI is the subset of the Cognito client we call.
type cognitoAPI interface {
	InitiateAuth(ctx context.Context, params *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	GlobalSignOut(ctx context.Context, params *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
	GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

// CognitoProvider authenticates against a Cognito user pool app client with
// USER_PASSWORD_AUTH enabled.
type CognitoProvider struct {
	client   cognitoAPI
	clientId string
	clock    func() time.Time
}

// NewCognitoProvider creates a provider with aws config located in path
// ~/.aws/config or the environment.
func NewCognitoProvider(ctx context.Context, clientId string) (*CognitoProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return newCognitoProvider(cognitoidentityprovider.NewFromConfig(cfg), clientId), nil
}

func newCognitoProvider(client cognitoAPI, clientId string) *CognitoProvider {
	return &CognitoProvider{client: client, clientId: clientId, clock: time.Now}
}

func (p *CognitoProvider) SignIn(ctx context.Context, email, password string) (*model.AuthSession, error) {
	out, err := p.client.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(p.clientId),
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return nil, translateCognitoError(err, "sign in")
	}
	if out.AuthenticationResult == nil {
		// A challenge (e.g. NEW_PASSWORD_REQUIRED) is not supported.
		return nil, backend.NewError(backend.CodeInvalidCredentials, "sign in requires challenge "+string(out.ChallengeName), nil)
	}
	session := p.toSession(out.AuthenticationResult, "")
	user, err := p.LookupUser(ctx, session.AccessToken)
	if err != nil {
		return nil, err
	}
	session.User = *user
	return session, nil
}

func (p *CognitoProvider) Refresh(ctx context.Context, session *model.AuthSession) (*model.AuthSession, error) {
	out, err := p.client.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(p.clientId),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": session.RefreshToken,
		},
	})
	if err != nil {
		err = translateCognitoError(err, "refresh session")
		if backend.IsCode(err, backend.CodeInvalidCredentials) {
			return nil, backend.NewError(backend.CodeSessionExpired, "refresh token rejected", err)
		}
		return nil, err
	}
	if out.AuthenticationResult == nil {
		return nil, backend.NewError(backend.CodeSessionExpired, "refresh returned no tokens", nil)
	}
	// Cognito does not rotate the refresh token.
	refreshed := p.toSession(out.AuthenticationResult, session.RefreshToken)
	refreshed.User = session.User
	return refreshed, nil
}

func (p *CognitoProvider) SignUp(ctx context.Context, input SignUpInput) (*model.AuthUser, error) {
	attributes := []types.AttributeType{
		{Name: aws.String(cognitoEmailAttribute), Value: aws.String(input.Email)},
	}
	for k, v := range input.Metadata {
		attributes = append(attributes, types.AttributeType{
			Name:  aws.String(cognitoMetadataPrefix + k),
			Value: aws.String(v),
		})
	}
	out, err := p.client.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId:       aws.String(p.clientId),
		Username:       aws.String(input.Email),
		Password:       aws.String(input.Password),
		UserAttributes: attributes,
	})
	if err != nil {
		return nil, translateCognitoError(err, "sign up")
	}
	return &model.AuthUser{
		Id:       aws.ToString(out.UserSub),
		Email:    input.Email,
		Metadata: input.Metadata,
	}, nil
}

func (p *CognitoProvider) SignOut(ctx context.Context, accessToken string) error {
	_, err := p.client.GlobalSignOut(ctx, &cognitoidentityprovider.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	return translateCognitoError(err, "sign out")
}

func (p *CognitoProvider) LookupUser(ctx context.Context, accessToken string) (*model.AuthUser, error) {
	out, err := p.client.GetUser(ctx, &cognitoidentityprovider.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		err = translateCognitoError(err, "get user")
		if backend.IsCode(err, backend.CodeInvalidCredentials) {
			return nil, backend.NewError(backend.CodeSessionExpired, "access token rejected", err)
		}
		return nil, err
	}
	user := &model.AuthUser{Id: aws.ToString(out.Username), Metadata: map[string]string{}}
	for _, attr := range out.UserAttributes {
		name := aws.ToString(attr.Name)
		value := aws.ToString(attr.Value)
		switch {
		case name == cognitoSubAttribute:
			user.Id = value
		case name == cognitoEmailAttribute:
			user.Email = value
		case strings.HasPrefix(name, cognitoMetadataPrefix):
			user.Metadata[strings.TrimPrefix(name, cognitoMetadataPrefix)] = value
		}
	}
	return user, nil
}

func (p *CognitoProvider) toSession(res *types.AuthenticationResultType, refreshToken string) *model.AuthSession {
	if res.RefreshToken != nil {
		refreshToken = *res.RefreshToken
	}
	return &model.AuthSession{
		AccessToken:  aws.ToString(res.AccessToken),
		RefreshToken: refreshToken,
		ExpiresAt:    p.clock().Add(time.Duration(res.ExpiresIn) * time.Second),
	}
}

// translateCognitoError maps Cognito exception names to backend codes.
func translateCognitoError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.NewError(backend.CodeTimeout, message, err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return backend.NewError(backend.CodeUnknown, message, err)
	}
	switch apiErr.ErrorCode() {
	case "NotAuthorizedException", "UserNotFoundException", "UserNotConfirmedException":
		return backend.NewError(backend.CodeInvalidCredentials, message, err)
	case "UsernameExistsException", "AliasExistsException":
		return backend.NewError(backend.CodeUserAlreadyExists, message, err)
	case "TooManyRequestsException", "LimitExceededException", "TooManyFailedAttemptsException":
		return backend.NewError(backend.CodeRateLimited, message, err)
	case "InvalidPasswordException":
		return backend.NewError(backend.CodeWeakPassword, message, err)
	}
	return backend.NewError(backend.CodeUnknown, message, err)
}
