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

package repository

import (
	"errors"
	"fmt"

	"github.com/tomoncle/anvil/database"
)

var (
	// ErrEntityNotFound is returned by SafeUpdate when no record has the id.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnknownColumn is returned when an attribute names a column the
	// model does not have.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrNoPrimaryKey is returned for models without a primary key field.
	ErrNoPrimaryKey = errors.New("model has no primary key")
)

// StoreError wraps a failure reported by the database driver.
type StoreError struct {
	Op   string
	Kind database.SQLError
	Err  error

	reported bool
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("repository %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func newStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) || errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrUnknownColumn) || errors.Is(err, ErrNoPrimaryKey) {
		return err
	}
	return &StoreError{Op: op, Kind: database.Classify(err), Err: err}
}

// KindOf returns the classified kind of a store error, or UnknownErr when
// err does not wrap a StoreError.
func KindOf(err error) database.SQLError {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return database.UnknownErr
}

// IsNotFound reports whether err means the target record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) || KindOf(err) == database.NoRowsErr
}
