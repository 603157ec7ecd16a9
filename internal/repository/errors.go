// Package repository holds the credential store drivers and the session
// store. Sentinel errors let higher layers tell expected outcomes from
// infrastructure failures without knowing which driver is configured.
package repository

import "errors"

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when the unique email constraint rejects a
// new user.
var ErrEmailExists = errors.New("email already exists")

// ErrResetTokenInvalid is returned when a reset token does not belong to
// the user, has expired or was already consumed.
var ErrResetTokenInvalid = errors.New("reset token invalid")

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")
