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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("nonsense"))
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "HTTP"}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "request completed",
		Data: logrus.Fields{
			"request_id":  "abc",
			"status_code": 200,
			"path":        "/test",
			"error":       errors.New("boom"),
		},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "HTTP", rec["logger"])
	assert.Equal(t, "abc", rec["request_id"])
	assert.Equal(t, "/test", rec["path"])
	assert.EqualValues(t, 200, rec["status_code"])
	assert.Equal(t, "boom", rec["fields"].(map[string]interface{})["error"])
}

func TestLog4jColorFormatterIncludesFields(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 10}
	out, err := f.Format(&logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.WarnLevel,
		Message: "slow query",
		Data:    logrus.Fields{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "slow query a=1 b=2")
	assert.Contains(t, string(out), "DATABASE")
}

func TestRegistryLevels(t *testing.T) {
	var buf bytes.Buffer
	ConfigureConsoleOutput(&buf)
	defer ConfigureConsoleOutput(nil)

	lg := GetLogger("REGISTRY_TEST")
	assert.Same(t, lg, GetLogger("REGISTRY_TEST"))

	assert.True(t, SetLoggerLevel("REGISTRY_TEST", "error"))
	assert.False(t, SetLoggerLevel("MISSING_LOGGER", "error"))

	lg.Info("hidden")
	assert.Empty(t, buf.String())
	lg.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("ANVIL_TEST_BOOL", "true")
	t.Setenv("ANVIL_TEST_DURATION", "7")
	t.Setenv("ANVIL_TEST_BAD_BOOL", "maybe")
	assert.True(t, EnvDefaultBool("ANVIL_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("ANVIL_TEST_BAD_BOOL", true))
	assert.Equal(t, 7*time.Second, EnvDefaultDuration("ANVIL_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", EnvDefaultString("ANVIL_TEST_UNSET", "fallback"))
}
