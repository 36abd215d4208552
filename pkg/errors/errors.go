// Copyright (c) 2026 The Mio Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines common errors for mio.
package errors

import "errors"

var (
	// ErrRegistryFull occurs when inserting into a slot registry that has no free slots left.
	ErrRegistryFull = errors.New("mio: slot registry is full")
	// ErrUnknownToken occurs when reregistering a token that has no live registration behind it.
	ErrUnknownToken = errors.New("mio: no resource is registered under this token")
	// ErrTokenOutOfRange occurs when a token falls outside the range an operation accepts,
	// e.g. passing a pool-managed token to a reserved-prefix registration.
	ErrTokenOutOfRange = errors.New("mio: token is out of range for this operation")
	// ErrTokenInUse occurs when registering a reserved token that already has a live registration.
	ErrTokenInUse = errors.New("mio: a resource is already registered under this token")
	// ErrChannelFull occurs when sending to a notify channel whose queue is at capacity.
	ErrChannelFull = errors.New("mio: notify channel is full")
	// ErrLoopRunning occurs when calling Run on an event loop that is already running.
	ErrLoopRunning = errors.New("mio: the event loop is already running")
	// ErrLoopClosed occurs when using an event loop after Close has released its descriptors.
	ErrLoopClosed = errors.New("mio: the event loop is closed")
)
