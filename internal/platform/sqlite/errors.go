package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/contacts-ledger/internal/store"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MapError maps a SQLite error to an appropriate store error, keeping the
// driver message.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	code := sqliteErr.Code()
	switch {
	case code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		message := strings.ToLower(err.Error())
		switch {
		case strings.Contains(message, "contacts.email"):
			return fmt.Errorf("%w: %v", store.ErrEmailExists, err)
		case strings.Contains(message, "operations.contact_id, operations.sequence"):
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case code&0xff == sqlite3lib.SQLITE_CONSTRAINT:
		return fmt.Errorf("%w: constraint violation: %v", store.ErrInvalidEntity, err)
	case IsBusy(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}
