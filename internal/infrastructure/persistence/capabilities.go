package persistence

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Capabilities describes what the connected database supports.
// It is resolved once at startup and shared by the repositories.
type Capabilities struct {
	Dialect string
	// CaseInsensitiveLike is true when the dialect has ILIKE
	CaseInsensitiveLike bool
	// OnConflict is true when INSERT ... ON CONFLICT DO NOTHING is available
	OnConflict bool
}

// DetectCapabilities inspects the dialector behind db
func DetectCapabilities(db *gorm.DB) Capabilities {
	name := db.Dialector.Name()
	switch name {
	case "postgres":
		return Capabilities{Dialect: name, CaseInsensitiveLike: true, OnConflict: true}
	case "sqlite":
		return Capabilities{Dialect: name, OnConflict: true}
	}
	return Capabilities{Dialect: name}
}

// containsCondition builds a case-insensitive substring condition on column
func (c Capabilities) containsCondition(column string) string {
	if c.CaseInsensitiveLike {
		return column + " ILIKE ?"
	}
	return "UPPER(" + column + ") LIKE UPPER(?)"
}

// escapeLike escapes LIKE wildcards in user-supplied text
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isUniqueViolation reports a duplicate-key error from any supported driver
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
