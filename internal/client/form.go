package client

import (
	"context"
	"errors"
	"strings"
)

// FormState is the password form's lifecycle state.
type FormState string

const (
	StateIdle         FormState = "idle"
	StateValidating   FormState = "validating"
	StateSubmitting   FormState = "submitting"
	StateSuccess      FormState = "success"
	StateFieldError   FormState = "field-error"
	StateGeneralError FormState = "general-error"
)

// Form field names, matching the API's field tags.
const (
	FieldOldPassword = "oldPassword"
	FieldNewPassword = "newPassword"
)

const minPasswordLength = 6

// StagedRegistration carries the data collected during the registration
// step into the password-setup step. It is passed explicitly rather
// than stashed in ambient session storage; Password is the provisional
// password the registrant must type again as the "old" password.
type StagedRegistration struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// SubmitResult tells the caller what to do after a successful submit.
type SubmitResult struct {
	// ClearStaged is set in registration mode: the staged payload is
	// spent and must be discarded.
	ClearStaged bool
	// ClearSession is set in change mode: the session token must be
	// dropped and the user re-authenticated.
	ClearSession bool
}

// PasswordForm is the old/new password form. With a staged registration
// it runs in registration mode (verify the entered old password against
// the staged provisional one, then create the account); without one it
// runs in change mode (call the change-password endpoint directly).
type PasswordForm struct {
	api    *Client
	staged *StagedRegistration

	state        FormState
	oldPassword  string
	newPassword  string
	fieldErrors  map[string]string
	generalError string
}

// NewPasswordForm constructs a form. staged selects registration mode;
// nil selects change mode.
func NewPasswordForm(api *Client, staged *StagedRegistration) *PasswordForm {
	return &PasswordForm{
		api:         api,
		staged:      staged,
		state:       StateIdle,
		fieldErrors: map[string]string{},
	}
}

// State returns the current form state.
func (f *PasswordForm) State() FormState {
	return f.state
}

// RegistrationMode reports whether the form creates an account rather
// than changing a password.
func (f *PasswordForm) RegistrationMode() bool {
	return f.staged != nil
}

// FieldError returns the error attached to a field, if any.
func (f *PasswordForm) FieldError(field string) string {
	return f.fieldErrors[field]
}

// GeneralError returns the form-level error, if any.
func (f *PasswordForm) GeneralError() string {
	return f.generalError
}

// SetField records a field value and clears its error.
func (f *PasswordForm) SetField(field, value string) {
	switch field {
	case FieldOldPassword:
		f.oldPassword = value
	case FieldNewPassword:
		f.newPassword = value
	}
	delete(f.fieldErrors, field)
}

// ValidateField runs the single-field rules, the blur-event analogue.
// It records and returns the field's error message, empty when valid.
func (f *PasswordForm) ValidateField(field string) string {
	message := f.checkField(field)
	if message == "" {
		delete(f.fieldErrors, field)
	} else {
		f.fieldErrors[field] = message
	}
	return message
}

func (f *PasswordForm) checkField(field string) string {
	switch field {
	case FieldOldPassword:
		if f.oldPassword == "" {
			return "old password is required"
		}
		if f.staged != nil && f.oldPassword != f.staged.Password {
			return "old password does not match"
		}
	case FieldNewPassword:
		if f.newPassword == "" {
			return "new password is required"
		}
		if len(f.newPassword) < minPasswordLength {
			return "password must be at least 6 characters"
		}
		if f.oldPassword != "" && f.newPassword == f.oldPassword {
			return "new password must be different from the old password"
		}
	}
	return ""
}

// Submit validates every field and, when all pass, performs the request
// for the current mode. Submission is blocked while any field fails.
func (f *PasswordForm) Submit(ctx context.Context) (SubmitResult, error) {
	f.state = StateValidating
	f.generalError = ""

	valid := true
	for _, field := range []string{FieldOldPassword, FieldNewPassword} {
		if f.ValidateField(field) != "" {
			valid = false
		}
	}
	if !valid {
		f.state = StateFieldError
		return SubmitResult{}, errors.New("form has validation errors")
	}

	f.state = StateSubmitting

	var err error
	if f.staged != nil {
		_, err = f.api.CreateAccount(ctx, f.staged.Name, f.staged.Email, f.oldPassword, f.newPassword, f.staged.Role)
	} else {
		err = f.api.ChangePassword(ctx, f.oldPassword, f.newPassword)
	}
	if err != nil {
		f.recordServerError(err)
		return SubmitResult{}, err
	}

	f.state = StateSuccess
	if f.staged != nil {
		return SubmitResult{ClearStaged: true}, nil
	}
	f.api.ClearToken()
	return SubmitResult{ClearSession: true}, nil
}

// recordServerError routes a server failure to a field by its tag.
// Untagged errors fall back to a "password" substring heuristic before
// being surfaced as a general error.
func (f *PasswordForm) recordServerError(err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Field != "":
			f.fieldErrors[apiErr.Field] = apiErr.Message
			f.state = StateFieldError
		case strings.Contains(strings.ToLower(apiErr.Message), "password"):
			f.fieldErrors[FieldOldPassword] = apiErr.Message
			f.state = StateFieldError
		default:
			f.generalError = apiErr.Message
			f.state = StateGeneralError
		}
		return
	}
	f.generalError = err.Error()
	f.state = StateGeneralError
}
