/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoColumnErr
	NoTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	ConnectionErr
)

func (e SQLError) String() string {
	switch e {
	case NoRowsErr:
		return "no_rows"
	case NoColumnErr:
		return "no_column"
	case NoTableErr:
		return "no_table"
	case DuplicateKeyErr:
		return "duplicate_key"
	case NotNullViolationErr:
		return "not_null_violation"
	case ForeignKeyViolationErr:
		return "foreign_key_violation"
	case CheckConstraintViolationErr:
		return "check_constraint_violation"
	case DataTruncatedErr:
		return "data_truncated"
	case InvalidTypeCastErr:
		return "invalid_type_cast"
	case ConnectionErr:
		return "connection"
	default:
		return "unknown"
	}
}

// IsConstraintViolation reports whether the kind is one of the integrity
// constraint failures.
func (e SQLError) IsConstraintViolation() bool {
	switch e {
	case DuplicateKeyErr, NotNullViolationErr, ForeignKeyViolationErr, CheckConstraintViolationErr:
		return true
	}
	return false
}

// IsSqlError classifies err. The first result is false when err carries no
// recognizable database failure.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true, ConnectionErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, ConnectionErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1054:
			return true, NoColumnErr
		case 1146:
			return true, NoTableErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		case 1040, 1045, 2002, 2003, 2006, 2013:
			return true, ConnectionErr
		default:
			return true, UnknownErr
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, classifySQLState(string(pqErr.Code))
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "sqlstate") {
		for _, code := range []string{"42703", "42p01", "23505", "23502", "23503", "23514", "22001", "42804"} {
			if strings.Contains(s, code) {
				return true, classifySQLState(strings.ToUpper(code))
			}
		}
	}
	if strings.Contains(s, "undefined column") || strings.Contains(s, "no such column") {
		return true, NoColumnErr
	}
	if strings.Contains(s, "undefined table") || strings.Contains(s, "no such table") {
		return true, NoTableErr
	}
	if strings.Contains(s, "duplicate key value") || strings.Contains(s, "unique constraint failed") {
		return true, DuplicateKeyErr
	}
	if strings.Contains(s, "not-null constraint") || strings.Contains(s, "not null constraint failed") {
		return true, NotNullViolationErr
	}
	if strings.Contains(s, "foreign key violation") || strings.Contains(s, "foreign key constraint failed") {
		return true, ForeignKeyViolationErr
	}
	if strings.Contains(s, "check constraint") {
		return true, CheckConstraintViolationErr
	}
	if strings.Contains(s, "string data right truncation") || strings.Contains(s, "data truncated") {
		return true, DataTruncatedErr
	}
	if strings.Contains(s, "datatype mismatch") {
		return true, InvalidTypeCastErr
	}
	if strings.Contains(s, "connection refused") || strings.Contains(s, "database is closed") ||
		strings.Contains(s, "broken pipe") {
		return true, ConnectionErr
	}
	return false, UnknownErr
}

// Classify returns the SQLError kind of err, UnknownErr when unrecognized.
func Classify(err error) SQLError {
	_, kind := IsSqlError(err)
	return kind
}

func classifySQLState(code string) SQLError {
	switch code {
	case "42703":
		return NoColumnErr
	case "42P01":
		return NoTableErr
	case "23505":
		return DuplicateKeyErr
	case "23502":
		return NotNullViolationErr
	case "23503":
		return ForeignKeyViolationErr
	case "23514":
		return CheckConstraintViolationErr
	case "22001":
		return DataTruncatedErr
	case "42804":
		return InvalidTypeCastErr
	}
	if strings.HasPrefix(code, "08") {
		return ConnectionErr
	}
	return UnknownErr
}
