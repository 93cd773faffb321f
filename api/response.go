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
	"fmt"

	"github.com/tomoncle/anvil/types"
)

// MessageGravity ranks a message attached to a response.
type MessageGravity int

const (
	Info MessageGravity = iota
	Warning
	Error
	Fatal
)

var gravityNames = [...]string{"Info", "Warning", "Error", "Fatal"}

var gravityDescs = [...]string{
	"informational, the request succeeded",
	"the request succeeded with caveats",
	"the request failed",
	"the request failed and was aborted",
}

var _ types.BaseEnum = Info

// Gravities returns every valid gravity in ascending order.
func Gravities() []MessageGravity {
	return []MessageGravity{Info, Warning, Error, Fatal}
}

func (g MessageGravity) IsValid() bool { return g >= Info && g <= Fatal }

func (g MessageGravity) Number() int {
	if !g.IsValid() {
		return types.IllegalValue
	}
	return int(g)
}

func (g MessageGravity) Name() string {
	if !g.IsValid() {
		return types.IllegalName
	}
	return gravityNames[g]
}

func (g MessageGravity) String() string { return g.Name() }

func (g MessageGravity) Desc() string {
	if !g.IsValid() {
		return types.IllegalDesc
	}
	return gravityDescs[g]
}

// MarshalText encodes the gravity by name, so JSON and YAML carry "Fatal".
func (g MessageGravity) MarshalText() ([]byte, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("invalid message gravity %d", int(g))
	}
	return []byte(g.Name()), nil
}

func (g *MessageGravity) UnmarshalText(text []byte) error {
	v, ok := types.ParseEnum(string(text), Gravities())
	if !ok {
		return fmt.Errorf("unknown message gravity %q", text)
	}
	*g = v
	return nil
}

type Message struct {
	Gravity MessageGravity `json:"gravity"`
	Value   string         `json:"value"`
}

func NewMessage(gravity MessageGravity, value string) Message {
	return Message{Gravity: gravity, Value: value}
}

// Response is the envelope of every JSON body: messages plus data.
type Response[T any] struct {
	Messages []Message `json:"messages"`
	Data     T         `json:"data"`
}

type ResponseBuilder[T any] struct {
	response Response[T]
}

func NewResponseBuilder[T any]() *ResponseBuilder[T] {
	return &ResponseBuilder[T]{
		response: Response[T]{
			Messages: []Message{},
		},
	}
}

// NewDefaultResponseBuilder returns a builder for responses without typed data.
func NewDefaultResponseBuilder() *ResponseBuilder[map[string]any] {
	return NewResponseBuilder[map[string]any]()
}

func (h *ResponseBuilder[T]) AddMessage(message Message) *ResponseBuilder[T] {
	h.response.Messages = append(h.response.Messages, message)
	return h
}

func (h *ResponseBuilder[T]) AddData(data T) *ResponseBuilder[T] {
	h.response.Data = data
	return h
}

func (h *ResponseBuilder[T]) Build() *Response[T] {
	return &h.response
}

// OK wraps data in an envelope without messages.
func OK[T any](data T) *Response[T] {
	return NewResponseBuilder[T]().AddData(data).Build()
}
