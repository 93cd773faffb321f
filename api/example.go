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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ExampleTag groups the example endpoints in the API document.
var ExampleTag = OpenAPITag{Name: "Example v1", Description: "Example endpoints"}

type ExampleController struct{}

// Test answers with the "Ok." envelope.
func (ExampleController) Test(c *gin.Context) {
	c.JSON(http.StatusOK, OK("Ok."))
}

func (h ExampleController) Routes() []Route {
	return []Route{
		{
			Method:  http.MethodGet,
			Path:    "/test",
			Handler: h.Test,
			Doc: &RouteDoc{
				Summary: "Test",
				Tags:    []string{ExampleTag.Name},
				Responses: map[int]ResponseDoc{
					http.StatusOK: {
						Description: "Test response",
						Data:        &Schema{Type: "string", Example: "Ok."},
					},
				},
			},
		},
	}
}
