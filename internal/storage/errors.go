package storage

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table not found")
	ErrInvalidTable  = errors.New("invalid table name")
)

// Fault is a storage service failure tagged with the operation that raised it.
type Fault struct {
	Op    string
	Table string
	Key   string
	Err   error
}

func NewFault(op, table, key string, err error) *Fault {
	return &Fault{Op: op, Table: table, Key: key, Err: err}
}

func (f *Fault) Error() string {
	if f.Key == "" {
		return fmt.Sprintf("%s %s: %v", f.Op, f.Table, f.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", f.Op, f.Table, f.Key, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Table names follow the table service rules: alphanumeric, starting with a
// letter, 3 to 63 characters.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{2,62}$`)

func ValidateTableName(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}
