// Package validate checks user forms before anything is sent to the auth provider or stored
package validate

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MinPasswordLength = 6

// User facing messages, most important first
const (
	MsgFillAllFields       = "Please fill all fields"
	MsgAllFieldsRequired   = "All fields are required"
	MsgCredentialsRequired = "Email and password cannot be empty"
	MsgEmailRequired       = "Please enter your email address"
	MsgPasswordsMismatch   = "Passwords do not match"
	MsgPasswordTooShort    = "Password must be at least 6 characters"
	MsgInvalidEmail        = "Please enter a valid email address"
	MsgTitleRequired       = "Please enter a title"
	MsgTitleTooLong        = "Title must be at most 200 characters"
	MsgCategoryInvalid     = "Please choose one of the categories"
)

// Error with message that may be shown to user as is
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var validate = validator.New()

type passwordForm struct {
	Password string `validate:"required,min=6"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type signUpForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type newsForm struct {
	Title    string `validate:"required,max=200"`
	Category string `validate:"oneof=India International Sport Entertainment"`
}

// NewPassword validates password change form and returns trimmed password
// Messages priority: empty fields, mismatch, length
func NewPassword(password string, confirm string) (string, error) {
	form := passwordForm{Password: strings.TrimSpace(password), Confirm: strings.TrimSpace(confirm)}

	err := firstFailure(validate.Struct(form), []rule{
		{"required", MsgFillAllFields},
		{"eqfield", MsgPasswordsMismatch},
		{"min", MsgPasswordTooShort},
	})

	return form.Password, err
}

// SignUp validates sign up form and returns normalized email and trimmed password
func SignUp(email string, password string, confirm string) (string, string, error) {
	form := signUpForm{Email: NormalizeEmail(email), Password: strings.TrimSpace(password), Confirm: strings.TrimSpace(confirm)}

	err := firstFailure(validate.Struct(form), []rule{
		{"required", MsgAllFieldsRequired},
		{"eqfield", MsgPasswordsMismatch},
		{"email", MsgInvalidEmail},
		{"min", MsgPasswordTooShort},
	})

	return form.Email, form.Password, err
}

// SignIn only checks presence: wrong credentials are told by the auth provider
func SignIn(email string, password string) (string, string, error) {
	email, password = NormalizeEmail(email), strings.TrimSpace(password)

	if email == "" || password == "" {
		return email, password, &Error{Message: MsgCredentialsRequired}
	}
	return email, password, nil
}

// Email validates address for password reset request
func Email(email string) (string, error) {
	email = NormalizeEmail(email)

	if err := validate.Var(email, "required"); err != nil {
		return email, &Error{Message: MsgEmailRequired}
	}
	if err := validate.Var(email, "email"); err != nil {
		return email, &Error{Message: MsgInvalidEmail}
	}
	return email, nil
}

// News validates article form and returns trimmed title and description
func News(title string, description string, category string) (string, string, error) {
	form := newsForm{Title: strings.TrimSpace(title), Category: strings.TrimSpace(category)}

	err := firstFailure(validate.Struct(form), []rule{
		{"required", MsgTitleRequired},
		{"max", MsgTitleTooLong},
		{"oneof", MsgCategoryInvalid},
	})

	return form.Title, strings.TrimSpace(description), err
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type rule struct {
	tag     string
	message string
}

func firstFailure(err error, rules []rule) error {
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	for _, r := range rules {
		for _, fe := range errs {
			if fe.Tag() == r.tag {
				return &Error{Message: r.message}
			}
		}
	}

	return &Error{Message: errs[0].Error()}
}
