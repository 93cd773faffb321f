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
)

// UpdateResult is the outcome of the update for one id.
type UpdateResult struct {
	ID      any
	Updated bool
	Err     error
}

// BulkResult collects per-id outcomes of BulkUpdate in input order.
type BulkResult struct {
	Results []UpdateResult
}

// AllUpdated reports whether every id matched a row. It is true for an
// empty result.
func (r *BulkResult) AllUpdated() bool {
	for _, res := range r.Results {
		if !res.Updated {
			return false
		}
	}
	return true
}

func (r *BulkResult) NoneUpdated() bool {
	for _, res := range r.Results {
		if res.Updated {
			return false
		}
	}
	return true
}

// Partial reports whether some, but not all, ids were updated.
func (r *BulkResult) Partial() bool {
	return !r.AllUpdated() && !r.NoneUpdated()
}

func (r *BulkResult) UpdatedIDs() []any {
	ids := make([]any, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Updated {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// FailedIDs returns the ids that were not updated, whether they matched no
// row or the statement failed.
func (r *BulkResult) FailedIDs() []any {
	ids := make([]any, 0)
	for _, res := range r.Results {
		if !res.Updated {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Err joins the store errors of every failed id.
func (r *BulkResult) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("id %v: %w", res.ID, res.Err))
		}
	}
	return errors.Join(errs...)
}
