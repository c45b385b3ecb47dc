package user

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/farafmb/klubhaus/core"
	appfs "github.com/farafmb/klubhaus/fs"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	emailDomainTag = "emaildomain"

	phoneTag   = "phone"
	phoneText  = "enter a valid mobile number, starting with a plus sign and a country code followed by digits only"
	phoneRegex = regexp.MustCompile(`^\+\d+$`)

	studentIDTag   = "studentid"
	studentIDText  = "the student ID must consist of exactly six digits"
	studentIDRegex = regexp.MustCompile(`^\d{6}$`)

	facultyTag  = "faculty"
	facultyText = "unknown faculty"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"
	commonPasswords []string
)

// InitValidators registers the user validations. Member e-mails must belong to emailDomain unless it is empty.
func InitValidators(validate *validator.Validate, translator ut.Translator, emailDomain string) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	_ = validate.RegisterValidation(emailDomainTag, newEmailDomainValidation(emailDomain))
	core.RegisterCustomTranslation(validate, translator, emailDomainTag, fmt.Sprintf("the e-mail address must end with @%s", emailDomain))

	_ = validate.RegisterValidation(phoneTag, regexValidation(phoneRegex))
	core.RegisterCustomTranslation(validate, translator, phoneTag, phoneText)

	_ = validate.RegisterValidation(studentIDTag, regexValidation(studentIDRegex))
	core.RegisterCustomTranslation(validate, translator, studentIDTag, studentIDText)

	_ = validate.RegisterValidation(facultyTag, facultyValidation)
	core.RegisterCustomTranslation(validate, translator, facultyTag, facultyText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, ChangePassword{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords loads the list of passwords rejected by the password policy.
func LoadCommonPasswords() error {
	file, err := appfs.FS.Open("common-passwords.txt")
	if err != nil {
		return errors.Wrap(err, "opening common passwords")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	pwds := make([]string, 0, 64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading common passwords")
	}
	sort.Strings(pwds)
	commonPasswords = pwds
	return nil
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !containsString(AllRoles, role) {
			return false
		}
	}
	return true
}

func newEmailDomainValidation(domain string) validator.Func {
	suffix := "@" + strings.ToLower(domain)
	return func(fl validator.FieldLevel) bool {
		if domain == "" {
			return true
		}
		return strings.HasSuffix(strings.ToLower(fl.Field().String()), suffix)
	}
}

func regexValidation(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func facultyValidation(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	for _, f := range Faculties {
		if f.Code == code {
			return true
		}
	}
	return false
}

// userStructValidation applies the password policy to structs carrying a new password.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(usr.Password, sl, usr.FirstName, usr.LastName, usr.Email)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, sl, usr.FirstName, usr.LastName, usr.Email)
		}
	case ChangePassword:
		validatePassword(usr.Password, sl)
	case ResetUserPassword:
		validatePassword(usr.Password, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, usrAttrs ...string) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	// - minLen: 8
	pwdLen := len([]rune(pwd))
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range pwd {
		// - no whitespace
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	// - not all numeric
	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	// - complexity: 1 upper, 1 lower, 1 digit & 1 special
	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		reportErr(pwdComplexityTag)
		return
	}

	// - no user attrs similarity
	lpwd := strings.ToLower(pwd)
	for _, attr := range usrAttrs {
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(strings.ToLower(attr), "")).QuickRatio()
		if ratio >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}

	// - no common passwords
	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) && commonPasswords[idx] == lpwd {
		reportErr(pwdNoCommonTag)
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
