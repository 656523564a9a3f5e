// Package profile manages the viewer's row in the users table: registration,
// load-or-create, profile edits with avatar upload and password
// re-verification before sensitive changes.
package profile

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/it35lab/campusfeed/auth"
	"github.com/it35lab/campusfeed/backend"
	"github.com/it35lab/campusfeed/file_store"
	"github.com/it35lab/campusfeed/model"
	"github.com/it35lab/campusfeed/utils"
	Logger "github.com/it35lab/campusfeed/utils/log"
	"github.com/jinzhu/copier"
	"github.com/sirupsen/logrus"
)

const (
	MessageUsernameRequired   = "Please enter a username."
	MessageFirstNameRequired  = "Please enter your first name."
	MessageLastNameRequired   = "Please enter your last name."
	MessagePasswordTooShort   = "Password must be at least 6 characters long."
	MessagePasswordMismatch   = "Passwords do not match."
	MessageUsernameTaken      = "This username is already taken. Please choose another one."
	MessageProfileSetupFailed = "Account created, but profile setup failed. Please contact support."
	MessageRegistrationFailed = "An unexpected error occurred during registration."
	MessageLoadFailed         = "Failed to load profile data. Please try again."
	MessageUpdateFailed       = "Failed to update profile. Please try again."
	MessageAvatarTooLarge     = "File size must be less than 5MB"
	MessageAvatarType         = "Only JPEG, PNG and GIF images are allowed"
	MessageAvatarUploadFailed = "Failed to upload avatar"
	MessageIncorrectPassword  = "Incorrect password. Please try again."
	MessageVerifyFailed       = "An error occurred. Please try again."

	defaultUsername = "user"
)

var allowedAvatarTypes = []string{"image/jpeg", "image/png", "image/gif"}

// Store is the users table, implemented by store.Store and
// store.MemoryStore.
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
}

// Identity is the auth surface the service needs, implemented by
// auth.Client.
type Identity interface {
	SignUp(ctx context.Context, input auth.SignUpInput) (*model.AuthUser, error)
	VerifyPassword(ctx context.Context, email, password string) error
}

type Viewer interface {
	CurrentUser() *model.AuthUser
}

type Config struct {
	Timeout        time.Duration
	AvatarBucket   string
	EmailDomain    string
	MaxAvatarBytes int64
}

type RegistrationInput struct {
	Username        string `json:"username"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ProfileUpdate replaces the editable fields of the viewer's row. Blank
// fields and a nil Avatar keep the current values.
type ProfileUpdate struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Avatar    *AvatarUpload
}

type AvatarUpload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

type Service struct {
	store    Store
	identity Identity
	viewer   Viewer
	objects  file_store.ObjectStore
	config   Config
	log      *logrus.Entry
	clock    func() time.Time
}

func NewService(store Store, identity Identity, viewer Viewer, objects file_store.ObjectStore, config Config) *Service {
	return &Service{
		store:    store,
		identity: identity,
		viewer:   viewer,
		objects:  objects,
		config:   config,
		log:      Logger.Log.WithField("component", "profile"),
		clock:    time.Now,
	}
}

// Validate checks a registration form without calling the backend.
func (in RegistrationInput) Validate(emailDomain string) error {
	var message string
	switch {
	case strings.TrimSpace(in.Username) == "":
		message = MessageUsernameRequired
	case strings.TrimSpace(in.FirstName) == "":
		message = MessageFirstNameRequired
	case strings.TrimSpace(in.LastName) == "":
		message = MessageLastNameRequired
	case !strings.HasSuffix(in.Email, emailDomain):
		message = "Only " + emailDomain + " emails are allowed to register."
	case len(in.Password) < auth.MinPasswordLength:
		message = MessagePasswordTooShort
	case in.Password != in.ConfirmPassword:
		message = MessagePasswordMismatch
	default:
		return nil
	}
	return utils.NewUserError(utils.ValidationError, message, nil)
}

// Register creates the identity and its users row. It does not sign in.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (*model.User, error) {
	if err := in.Validate(s.config.EmailDomain); err != nil {
		return nil, err
	}

	ctx, cancel := backend.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	username := strings.TrimSpace(in.Username)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	identity, err := s.identity.SignUp(ctx, auth.SignUpInput{
		Email:    in.Email,
		Password: in.Password,
		Metadata: map[string]string{
			"username":   username,
			"first_name": firstName,
			"last_name":  lastName,
		},
	})
	if err != nil {
		s.log.WithField("email", in.Email).Warnln("sign up failed", err)
		return nil, backend.ToUserError(err, MessageRegistrationFailed)
	}

	user := &model.User{
		Id:        identity.Id,
		Email:     strings.TrimSpace(in.Email),
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.log.WithField("user_id", identity.Id).Errorln("insert users row after sign up failed", err)
		if backend.IsCode(err, backend.CodeUniqueViolation) {
			return nil, utils.NewUserError(utils.ValidationError, MessageUsernameTaken, err)
		}
		return nil, utils.NewUserError(utils.TransientError, MessageProfileSetupFailed, err)
	}
	return user, nil
}

// Load returns the viewer's row, creating a default one when the viewer has
// none yet.
func (s *Service) Load(ctx context.Context) (*model.User, error) {
	viewer, err := s.requireViewer()
	if err != nil {
		return nil, err
	}

	ctx, cancel := backend.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	user, err := s.store.GetUser(ctx, viewer.Id)
	if err == nil {
		return user, nil
	}
	if !backend.IsCode(err, backend.CodeNoRows) {
		s.log.WithField("user_id", viewer.Id).Errorln("fetch profile failed", err)
		return nil, backend.ToUserError(err, MessageLoadFailed)
	}

	user = &model.User{
		Id:       viewer.Id,
		Email:    viewer.Email,
		Username: utils.EmailLocalPart(viewer.Email, defaultUsername),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.log.WithField("user_id", viewer.Id).Errorln("create default profile failed", err)
		return nil, utils.NewUserError(utils.TransientError, MessageLoadFailed, err)
	}
	s.log.WithField("user_id", viewer.Id).Infoln("created default profile")
	return user, nil
}

// Update writes the profile form and, when given, a new avatar.
func (s *Service) Update(ctx context.Context, update ProfileUpdate) (*model.User, error) {
	viewer, err := s.requireViewer()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(update.Username) == "" {
		return nil, utils.NewUserError(utils.ValidationError, MessageUsernameRequired, nil)
	}
	var avatar []byte
	if update.Avatar != nil {
		if avatar, err = s.readAvatar(update.Avatar); err != nil {
			return nil, err
		}
	}

	ctx, cancel := backend.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	user, err := s.store.GetUser(ctx, viewer.Id)
	if err != nil {
		return nil, backend.ToUserError(err, MessageUpdateFailed)
	}
	// Fields left blank keep their stored value.
	if err := copier.CopyWithOption(user, &update, copier.Option{IgnoreEmpty: true}); err != nil {
		return nil, utils.NewUserError(utils.TransientError, MessageUpdateFailed, err)
	}
	user.Username = strings.TrimSpace(user.Username)

	if update.Avatar != nil {
		path := file_store.ObjectPath(viewer.Id, update.Avatar.FileName, s.clock())
		err := s.objects.Upload(ctx, s.config.AvatarBucket, path, bytes.NewReader(avatar), file_store.UploadOptions{
			CacheControl: file_store.DefaultCacheControl,
			ContentType:  update.Avatar.ContentType,
			Upsert:       true,
		})
		if err != nil {
			s.log.WithField("user_id", viewer.Id).Errorln("avatar upload failed", err)
			return nil, backend.ToUserError(err, MessageAvatarUploadFailed)
		}
		url := s.objects.PublicURL(s.config.AvatarBucket, path)
		user.AvatarUrl = &url
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.log.WithField("user_id", viewer.Id).Errorln("update profile failed", err)
		if backend.IsCode(err, backend.CodeUniqueViolation) {
			return nil, utils.NewUserError(utils.ValidationError, MessageUsernameTaken, err)
		}
		return nil, backend.ToUserError(err, MessageUpdateFailed)
	}
	return user, nil
}

// readAvatar enforces size and type limits before anything is uploaded.
func (s *Service) readAvatar(a *AvatarUpload) ([]byte, error) {
	if !utils.ContainsString(allowedAvatarTypes, a.ContentType) {
		return nil, utils.NewUserError(utils.ValidationError, MessageAvatarType, nil)
	}
	data, err := io.ReadAll(io.LimitReader(a.Body, s.config.MaxAvatarBytes+1))
	if err != nil {
		return nil, utils.NewUserError(utils.TransientError, MessageAvatarUploadFailed, err)
	}
	if int64(len(data)) > s.config.MaxAvatarBytes {
		return nil, utils.NewUserError(utils.ValidationError, MessageAvatarTooLarge, nil)
	}
	return data, nil
}

// VerifyPassword re-authenticates the viewer. The session is left as is.
func (s *Service) VerifyPassword(ctx context.Context, password string) error {
	viewer, err := s.requireViewer()
	if err != nil {
		return err
	}

	ctx, cancel := backend.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err = s.identity.VerifyPassword(ctx, viewer.Email, password)
	switch {
	case err == nil:
		return nil
	case backend.IsCode(err, backend.CodeInvalidCredentials):
		return utils.NewUserError(utils.IdentityError, MessageIncorrectPassword, err)
	default:
		s.log.WithField("user_id", viewer.Id).Errorln("verify password failed", err)
		return backend.ToUserError(err, MessageVerifyFailed)
	}
}

func (s *Service) requireViewer() (*model.AuthUser, error) {
	if s.viewer != nil {
		if u := s.viewer.CurrentUser(); u != nil {
			return u, nil
		}
	}
	return nil, utils.NewUserError(utils.IdentityError, "Please sign in to continue.", nil)
}
