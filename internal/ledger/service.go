package ledger

import (
	"database/sql"
	"errors"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrTestNotFound     = errors.New("test not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrNotAssigned      = errors.New("test not assigned to student")
	ErrNoAttemptsLeft   = errors.New("no attempts left")
	ErrInvalidSelection = errors.New("selection does not belong to test")
	ErrStoreBusy        = errors.New("store busy, retries exhausted")
)

type Service struct {
	db            *sql.DB
	retryAttempts int
}

func NewService(db *sql.DB, retryAttempts int) *Service {
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	return &Service{db: db, retryAttempts: retryAttempts}
}
