package database

import (
	"errors"
	"strings"

	"daimaescape/internal/models"

	"github.com/mattn/go-sqlite3"
)

// mapWriteError translates SQLite constraint failures on bookings into
// domain errors. Anything else is returned unchanged.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintTrigger:
		return models.ErrOverlapConstraint
	case sqlite3.ErrConstraintUnique:
		return models.ErrDuplicateReference
	}

	if strings.Contains(err.Error(), "room_unavailable") {
		return models.ErrOverlapConstraint
	}
	return err
}
