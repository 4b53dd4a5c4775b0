package delivery

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyContent      = errors.New("message content cannot be empty")
	ErrContentTooLong    = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrSelfSend          = errors.New("cannot send a message to yourself")
	ErrInvalidReply      = errors.New("reply_to must reference a message in this conversation")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotOwner          = errors.New("only the sender can modify this message")
	ErrNotRecipient      = errors.New("only the recipient can acknowledge this message")
	ErrMessageDeleted    = errors.New("message already deleted")
	ErrNotInConversation = errors.New("message does not belong to this conversation")
	ErrInvalidLimit      = errors.New("limit out of range")
	ErrInvalidOffset     = errors.New("offset must not be negative")
)

// ValidationError is a request the caller must fix before retrying.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// AuthorizationError is an operation the actor may not perform.
type AuthorizationError struct{ Err error }

func (e *AuthorizationError) Error() string { return e.Err.Error() }
func (e *AuthorizationError) Unwrap() error { return e.Err }

// NotFoundError names a missing user or message.
type NotFoundError struct{ Err error }

func (e *NotFoundError) Error() string { return e.Err.Error() }
func (e *NotFoundError) Unwrap() error { return e.Err }

func invalid(err error) error   { return &ValidationError{Err: err} }
func forbidden(err error) error { return &AuthorizationError{Err: err} }
func notFound(err error) error  { return &NotFoundError{Err: err} }
