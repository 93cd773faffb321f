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

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JsonObject stores a JSON object in a text column.
type JsonObject map[string]interface{}

// JsonArray stores a JSON array in a text column.
type JsonArray []interface{}

func (j JsonObject) Value() (driver.Value, error) {
	return jsonValue(j, j == nil)
}

func (j *JsonObject) Scan(value interface{}) error {
	*j = make(JsonObject)
	return scanJSON(value, j)
}

func (j JsonArray) Value() (driver.Value, error) {
	return jsonValue(j, j == nil)
}

func (j *JsonArray) Scan(value interface{}) error {
	*j = make(JsonArray, 0)
	return scanJSON(value, j)
}

func jsonValue(v interface{}, isNil bool) (driver.Value, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// scanJSON decodes drivers returning either []byte or string for text columns.
func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into %T", value, dest)
	}
}
