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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/repository"
)

func abortWithMessage(c *gin.Context, status int, gravity MessageGravity, msg string) {
	c.AbortWithStatusJSON(status, NewDefaultResponseBuilder().AddMessage(NewMessage(gravity, msg)).Build())
}

// ThrowInternalServerError aborts the request with a 500 envelope.
func ThrowInternalServerError(c *gin.Context, err error) {
	abortWithMessage(c, http.StatusInternalServerError, Fatal, err.Error())
}

func ThrowBadRequest(c *gin.Context, err error) {
	abortWithMessage(c, http.StatusBadRequest, Fatal, err.Error())
}

func ThrowNotFound(c *gin.Context, err error) {
	abortWithMessage(c, http.StatusNotFound, Fatal, err.Error())
}

func ThrowConflict(c *gin.Context, err error) {
	abortWithMessage(c, http.StatusConflict, Fatal, err.Error())
}

func ThrowServiceUnavailable(c *gin.Context, err error) {
	abortWithMessage(c, http.StatusServiceUnavailable, Fatal, err.Error())
}

// ThrowRepositoryError maps a repository failure to its HTTP status.
func ThrowRepositoryError(c *gin.Context, err error) {
	switch {
	case repository.IsNotFound(err):
		ThrowNotFound(c, err)
	case errors.Is(err, repository.ErrUnknownColumn):
		ThrowBadRequest(c, err)
	default:
		switch kind := repository.KindOf(err); {
		case kind.IsConstraintViolation():
			ThrowConflict(c, err)
		case kind == database.ConnectionErr:
			ThrowServiceUnavailable(c, err)
		default:
			ThrowInternalServerError(c, err)
		}
	}
}
