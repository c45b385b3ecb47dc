package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/farafmb/klubhaus/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminBoard = "admin:board"

	// Member
	RoleMember = "member:"
)

var (
	AdminRoles  = []string{RoleAdmin, RoleAdminBoard}
	MemberRoles = []string{RoleMember}
	AllRoles    = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminBoard: 30,
		RoleAdmin:      21,

		// Members: 10 - 1
		RoleMember: 1,
	}

	Roles = []Role{
		{Name: "Member", Value: RoleMember},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Board", Value: RoleAdminBoard},
	}

	// Faculties a member can belong to.
	Faculties = []Faculty{
		{Code: "FMB", Name: "Maschinenbau"},
		{Code: "FVST", Name: "Verfahrens- und Systemtechnik"},
		{Code: "FEIT", Name: "Elektro- und Informationstechnik"},
		{Code: "FIN", Name: "Informatik"},
		{Code: "FMA", Name: "Mathematik"},
		{Code: "FNW", Name: "Naturwissenschaften"},
		{Code: "FME", Name: "Medizin"},
		{Code: "FHW", Name: "Humanwissenschaften"},
		{Code: "FWW", Name: "Wirtschaftswissenschaften"},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 3)
	all = append(all, AdminRoles...)
	all = append(all, MemberRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Faculty struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Faculty      string    `json:"faculty"`
	Student      string    `json:"student"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Profile returns the member-editable fields of the User.
func (u *User) Profile() Profile {
	return Profile{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Faculty:   u.Faculty,
		Student:   u.Student,
	}
}

// SetProfile overwrites the member-editable fields of the User.
func (u *User) SetProfile(p Profile) {
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.Email = p.Email
	u.Phone = p.Phone
	u.Faculty = p.Faculty
	u.Student = p.Student
}

// Profile holds the fields a member may change about themselves.
type Profile struct {
	FirstName string `json:"first_name" validate:"notblank,max=150"`
	LastName  string `json:"last_name" validate:"notblank,max=150"`
	Email     string `json:"email" validate:"required,email,max=254,emaildomain"`
	Phone     string `json:"phone" validate:"omitempty,max=50,phone"`
	Faculty   string `json:"faculty" validate:"omitempty,faculty"`
	Student   string `json:"student" validate:"omitempty,studentid"`
}

// Clean normalizes the Profile so that equal values compare equal.
func (p *Profile) Clean() {
	p.FirstName = core.CleanString(p.FirstName)
	p.LastName = core.CleanString(p.LastName)
	p.Email = core.CleanString(p.Email, true /* lower */)
	p.Phone = core.StripSpaces(p.Phone)
	p.Faculty = strings.ToUpper(core.CleanString(p.Faculty))
	p.Student = core.CleanString(p.Student)
}

func (p *Profile) Validate(validate *validator.Validate) error {
	p.Clean()
	return validate.Struct(p)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	FirstName       string   `json:"first_name" validate:"notblank,max=150"`
	LastName        string   `json:"last_name" validate:"notblank,max=150"`
	Email           string   `json:"email" validate:"required,email,max=254,emaildomain"`
	Phone           string   `json:"phone" validate:"omitempty,max=50,phone"`
	Faculty         string   `json:"faculty" validate:"omitempty,faculty"`
	Student         string   `json:"student" validate:"omitempty,studentid"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	p := Profile{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Email:     nu.Email,
		Phone:     nu.Phone,
		Faculty:   nu.Faculty,
		Student:   nu.Student,
	}
	p.Clean()
	nu.FirstName, nu.LastName, nu.Email = p.FirstName, p.LastName, p.Email
	nu.Phone, nu.Faculty, nu.Student = p.Phone, p.Faculty, p.Student

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email, nu.Student)
}

// UpdateUser defines what information an admin may provide to modify an existing User directly.
type UpdateUser struct {
	FirstName       string   `json:"first_name" validate:"omitempty,max=150"`
	LastName        string   `json:"last_name" validate:"omitempty,max=150"`
	Email           string   `json:"email" validate:"omitempty,email,max=254,emaildomain"`
	Phone           *string  `json:"phone" validate:"omitempty,max=50,phone"`
	Faculty         *string  `json:"faculty" validate:"omitempty,faculty"`
	Student         *string  `json:"student" validate:"omitempty,studentid"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	// blank values keep the original ones; optional fields may be cleared with ""
	p := origUsr.Profile()
	if name := core.CleanString(uu.FirstName); name != "" {
		p.FirstName = name
	}
	if name := core.CleanString(uu.LastName); name != "" {
		p.LastName = name
	}
	if email := core.CleanString(uu.Email); email != "" {
		p.Email = email
	}
	if uu.Phone != nil {
		p.Phone = *uu.Phone
	}
	if uu.Faculty != nil {
		p.Faculty = *uu.Faculty
	}
	if uu.Student != nil {
		p.Student = *uu.Student
	}
	p.Clean()

	uu.FirstName, uu.LastName, uu.Email = p.FirstName, p.LastName, p.Email
	uu.Phone, uu.Faculty, uu.Student = &p.Phone, &p.Faculty, &p.Student
	if uu.Roles == nil {
		uu.Roles = origUsr.Roles
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, *uu.Student, origUsr)
}

type ChangePassword struct {
	OldPassword     string `json:"old_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (cp ChangePassword) Validate(validate *validator.Validate) error { return validate.Struct(cp) }

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type ActivateUser struct {
	Token string `json:"token" validate:"required"`
	UID   string `json:"uid" validate:"required"`
}

func (au ActivateUser) Validate(validate *validator.Validate) error { return validate.Struct(au) }

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// OrderingFields are the fields users may be ordered by.
var OrderingFields = []string{"first_name", "last_name", "email", "created_at", "is_active", "last_login"}
