package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/farafmb/klubhaus/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrStudentExists  = errors.New("a user with this student ID already exists")
	ErrInvalidOldPwd  = errors.New("your old password was entered incorrectly")
	ErrAlreadyActive  = errors.New("this account is already active")
	ErrInactiveUser   = errors.New("this account is not active")
	errInvalidResetID = errors.New("invalid user ID")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrEmailExists or ErrStudentExists if another User,
		// not in excludedUsers, already uses the e-mail address or the (non-empty) student ID.
		CheckUniqueness(ctx context.Context, email, student string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FirstName, User.LastName or User.Email.
		// QueryFilter.Roles matches Users with any role starting with one of the given roles.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
		tokens  tokenGenerator
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
		tokens:  tokenGenerator{secretKey: conf.SecretKey, timeout: conf.PasswordResetTimeoutDelta},
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email, student string, exclUsers ...User) error {
	return UniquenessError(svc.repo.CheckUniqueness(ctx, email, student, exclUsers))
}

// UniquenessError maps the uniqueness conflicts of Repository.CheckUniqueness to a core.ValidationError
// on the conflicting field. Other errors are returned as is.
func UniquenessError(err error) error {
	var field string
	switch errors.Cause(err) {
	case nil:
		return nil
	case ErrEmailExists:
		field = "email"
	case ErrStudentExists:
		field = "student"
	default:
		return err
	}
	return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
}

func (svc *Service) newUser(nu NewUser, active bool) (User, error) {
	now := time.Now().UTC()
	usr := User{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Email:     nu.Email,
		Phone:     nu.Phone,
		Faculty:   nu.Faculty,
		Student:   nu.Student,
		IsActive:  active,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return usr, nil
}

// Register creates an inactive member and sends them an activation e-mail.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Roles = MemberRoles
	usr, err := svc.newUser(nu, false)
	if err != nil {
		return User{}, err
	}
	if usr, err = svc.repo.CreateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	svc.sendAccountMail(usr, "Activate your account", "account-activation", "activate")
	return usr, nil
}

// Activate activates the User identified by the uid/token pair of an activation e-mail.
func (svc *Service) Activate(ctx context.Context, au ActivateUser) (User, error) {
	usr, err := svc.getByUID(ctx, au.UID)
	if err != nil {
		return User{}, err
	}
	if usr.IsActive {
		return User{}, core.NewValidationError(ErrAlreadyActive)
	}
	if err = svc.tokens.verifyToken(usr, au.Token); err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "activating user")
}

// Create creates an active User; used by admins.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.newUser(nu, true)
	if err != nil {
		return User{}, err
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Update applies a validated UpdateUser onto usr.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Email = uu.Email
	if uu.Phone != nil {
		usr.Phone = *uu.Phone
	}
	if uu.Faculty != nil {
		usr.Faculty = *uu.Faculty
	}
	if uu.Student != nil {
		usr.Student = *uu.Student
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return User{}, core.NewValidationError(ErrInvalidOldPwd, core.FieldError{Field: "old_password", Error: ErrInvalidOldPwd.Error()})
	}
	if err := usr.SetPassword(cp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "changing password")
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

// RequestPasswordReset e-mails a password reset link to the active User owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrInactiveUser
	}
	svc.sendAccountMail(usr, "Password Reset", "password-reset", "password-reset")
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error) {
	usr, err := svc.getByUID(ctx, rp.UID)
	if err != nil {
		return User{}, err
	}
	if err = svc.tokens.verifyToken(usr, rp.Token); err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "resetting password")
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	return svc.repo.DeleteUsersByID(ctx, ids)
}

func (svc *Service) getByUID(ctx context.Context, uid string) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidResetID, core.FieldError{Field: "uid", Error: errInvalidResetID.Error()})
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, core.NewValidationError(errInvalidResetID, core.FieldError{Field: "uid", Error: errInvalidResetID.Error()})
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

// sendAccountMail sends a uid/token link to usr. Delivery failures are logged.
func (svc *Service) sendAccountMail(usr User, subject, tmpl, page string) {
	url := fmt.Sprintf("%s/%s?uid=%s&token=%s", svc.conf.FrontendBaseURL, page, EncodeUID(usr), svc.tokens.makeToken(usr))
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"first_name": usr.FirstName,
			"action_url": url,
		},
	}
	for _, derr := range svc.mailSvc.SendMessages(msg) {
		svc.logger.Error(fmt.Sprintf("sending %s email", tmpl), derr, usr)
	}
}
