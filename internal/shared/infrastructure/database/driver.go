package database

import (
	"fmt"
	"strings"
)

// Driver represents a storage backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMongo    Driver = "mongo"
)

// String returns the string representation of the driver.
func (d Driver) String() string {
	return string(d)
}

// DetectDriver infers the backend from a connection string. An empty URL
// selects SQLite so the CLI works with zero configuration.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}

	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return DriverMongo
	case strings.HasPrefix(url, "sqlite://"),
		strings.HasPrefix(url, "file:"),
		strings.HasSuffix(url, ".db"),
		strings.HasSuffix(url, ".sqlite"),
		strings.HasSuffix(url, ".sqlite3"):
		return DriverSQLite
	}

	return DriverPostgres
}

// ParseDriver reads an explicit DATABASE_DRIVER value. "" and "auto" fall
// back to DetectDriver(url).
func ParseDriver(name, url string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(name))); d {
	case "", "auto":
		return DetectDriver(url), nil
	case "postgresql":
		return DriverPostgres, nil
	case "mongodb":
		return DriverMongo, nil
	default:
		if !d.IsValid() {
			return "", fmt.Errorf("unsupported database driver %q", name)
		}
		return d, nil
	}
}

// IsValid returns true if the driver is a known type.
func (d Driver) IsValid() bool {
	switch d {
	case DriverPostgres, DriverSQLite, DriverMongo:
		return true
	default:
		return false
	}
}

// IsSQL reports whether the backend is migrated with goose.
func (d Driver) IsSQL() bool {
	return d == DriverPostgres || d == DriverSQLite
}
