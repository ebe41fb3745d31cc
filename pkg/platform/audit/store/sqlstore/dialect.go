package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect names the database/sql driver and its SQL flavor.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case DialectSQLite, DialectPostgres:
		return Dialect(s), nil
	case "sqlite":
		return DialectSQLite, nil
	case "postgresql", "pg":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported audit store dialect %q", s)
}

// bind returns the n-th (1-based) positional parameter marker.
func (d Dialect) bind(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// isContention reports lock/serialization errors worth retrying.
func isContention(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

// reusedIDMessage is raised by the insert trigger guarding tombstoned IDs.
const reusedIDMessage = "audit event id already used"

// isUniqueViolation reports a reused primary key, including the ID of an
// event that was purged.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code != sqlite3.ErrConstraint {
			return false
		}
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return true
		case sqlite3.ErrConstraintTrigger:
			return strings.Contains(sqliteErr.Error(), reusedIDMessage)
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
