package apperrors

import (
	"errors"
)

var (
	ErrProfileNotFound = errors.New("profile not found")

	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidCredentials  = errors.New("invalid login credentials")
	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrNoSession           = errors.New("no active session")
	ErrNotRecovering       = errors.New("password recovery is not active")
	ErrConfirmationMissing = errors.New("confirmation required")

	ErrNewsNotFound       = errors.New("news not found")
	ErrNewsInvalidMedia   = errors.New("news media is invalid")
	ErrEpaperNotFound     = errors.New("epaper not found")
	ErrEpaperExists       = errors.New("epaper already exists for this city and date")
	ErrEpaperInvalidCity  = errors.New("epaper city is not supported")
	ErrEpaperInvalidFile  = errors.New("epaper file is not a pdf")
	ErrObjectNotFound     = errors.New("object not found")
	ErrKeyNotFound        = errors.New("key not found")
	ErrForbidden          = errors.New("role is not allowed to do this")
	ErrStorageUnavailable = errors.New("object storage is not configured")
)
