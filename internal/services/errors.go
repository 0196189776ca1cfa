package services

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrChatNotFound       = errors.New("chat not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrValidation         = errors.New("validation failed")
	ErrUpstreamInference  = errors.New("inference provider failed")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already in use")
	ErrTokenExpired       = errors.New("token expired")
	ErrStorageUnavailable = errors.New("object storage is not configured")
)
