package users

import (
	"context"
)

// Repository is the user record store. Records are only ever appended.
//
// Create is the single write path and must be atomic with respect to other
// Create calls on the same store: it fails with ErrDuplicateEmail or
// ErrDuplicateMobile (email is checked first) instead of appending a record
// that would break uniqueness. Lookups return common.ErrorNotFound on a miss.
// Any I/O failure is wrapped in ErrStorage.
type Repository interface {
	Create(ctx context.Context, u *User) error
	All(ctx context.Context) ([]*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByMobile(ctx context.Context, mobile string) (*User, error)
	Count(ctx context.Context) (int, error)
}

// SkipCounter is implemented by stores that tolerate malformed records.
type SkipCounter interface {
	// SkippedRecords is the number of records dropped by the latest full read.
	SkippedRecords() int64
}

// InitChecker is implemented by stores that can exist without ever having
// been written to. Stores that do not implement it are always initialized.
type InitChecker interface {
	Initialized(ctx context.Context) (bool, error)
}

// checkUnique applies the uniqueness rules of Create against a snapshot.
func checkUnique(existing []*User, u *User) error {
	for _, e := range existing {
		if e.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	if u.Mobile == "" {
		return nil
	}
	for _, e := range existing {
		if e.Mobile == u.Mobile {
			return ErrDuplicateMobile
		}
	}
	return nil
}
