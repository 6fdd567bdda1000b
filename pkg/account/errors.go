package account

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownIdentifier is returned for an address with no account.
	ErrUnknownIdentifier = errors.New("unknown account")
	// ErrInvalidPassword is returned when Unlock is given the wrong password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNotUnlocked is returned when a locked account is asked for its secret or a signature.
	ErrNotUnlocked = errors.New("account is locked")
	// ErrNotSupported is returned by providers that cannot perform an operation.
	ErrNotSupported = errors.New("operation not supported by provider")
	// ErrEmptyPassword is returned when an account is created without a password.
	ErrEmptyPassword = errors.New("password cannot be empty")
	// ErrPasswordTooLong is returned when a new password exceeds MaxPasswordLength bytes.
	ErrPasswordTooLong = errors.New("password is too long")
	// ErrAccountExists is returned when an address is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrAddressSpaceExhausted is returned when every generated key collided with an existing account.
	ErrAddressSpaceExhausted = errors.New("could not allocate an unused address")
)

// ProvisionError reports a failed account creation.
type ProvisionError struct {
	Err error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision account: %v", e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func provisionError(err error) error {
	return &ProvisionError{Err: err}
}
