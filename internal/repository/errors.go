package repository

import "errors"

var (
	// ErrSessionNotFound indicates no session is stored under the id
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists indicates a session with the same id is already stored
	ErrSessionExists = errors.New("session already exists")

	// ErrRepositoryFull indicates the session limit has been reached
	ErrRepositoryFull = errors.New("session limit reached")
)
