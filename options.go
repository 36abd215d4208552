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

package mio

import (
	"time"

	"github.com/jnicholls/mio/pkg/logging"
)

const (
	// DefaultRegistryCapacity is the default number of slots in the loop's
	// resource registry.
	DefaultRegistryCapacity = 1024
	// DefaultReservedTokens is how many leading token values are left to the
	// application for singleton resources by default.
	DefaultReservedTokens = 1
	// DefaultNotifyCapacity bounds the notify channel queue.
	DefaultNotifyCapacity = 4096
	// DefaultTimerTick is the timer wheel granularity.
	DefaultTimerTick = 100 * time.Millisecond
	// DefaultTimerWheelSize is the number of slots per wheel tier.
	DefaultTimerWheelSize = 256
	// DefaultTimerTiers is the number of wheel tiers.
	DefaultTimerTiers = 3
)

// Option is a function that configures an event loop at construction time.
// The configuration is fixed for the loop's lifetime.
type Option func(opts *Options)

// Options holds the construction-time configuration of an event loop.
type Options struct {
	// RegistryCapacity fixes the number of resources the loop can track at
	// once; registrations beyond it fail with ErrRegistryFull.
	RegistryCapacity int

	// ReservedTokens is the width of the token prefix carved out for
	// application singletons (e.g. a listening socket at token 0).
	// Pool-issued tokens start right after it.
	ReservedTokens int

	// NotifyCapacity bounds the cross-thread message queue; Send fails with
	// ErrChannelFull beyond it.
	NotifyCapacity int

	// TimerTick is the timer wheel granularity. Timeouts round up to it.
	TimerTick time.Duration

	// TimerWheelSize is the slot count per wheel tier, rounded up to a
	// power of two.
	TimerWheelSize int

	// TimerTiers is the number of wheel tiers.
	TimerTiers int

	// PollTimeout caps how long one poll may block even with no timer
	// pending. Zero means no cap: block until an event or timer deadline.
	PollTimeout time.Duration

	// Logger is the custom logger for the loop. The default logger is
	// powered by zap.
	Logger logging.Logger
}

func initOptions(options ...Option) *Options {
	opts := new(Options)
	for _, option := range options {
		option(opts)
	}
	if opts.RegistryCapacity <= 0 {
		opts.RegistryCapacity = DefaultRegistryCapacity
	}
	if opts.ReservedTokens < 0 {
		opts.ReservedTokens = 0
	} else if opts.ReservedTokens == 0 {
		opts.ReservedTokens = DefaultReservedTokens
	}
	if opts.NotifyCapacity <= 0 {
		opts.NotifyCapacity = DefaultNotifyCapacity
	}
	if opts.TimerTick <= 0 {
		opts.TimerTick = DefaultTimerTick
	}
	if opts.TimerWheelSize <= 0 {
		opts.TimerWheelSize = DefaultTimerWheelSize
	}
	if opts.TimerTiers <= 0 {
		opts.TimerTiers = DefaultTimerTiers
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetDefaultLogger()
	}
	return opts
}

// WithOptions sets up all options at once.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithRegistryCapacity sets the resource registry capacity.
func WithRegistryCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.RegistryCapacity = capacity
	}
}

// WithReservedTokens sets the reserved token prefix width.
func WithReservedTokens(n int) Option {
	return func(opts *Options) {
		opts.ReservedTokens = n
	}
}

// WithNotifyCapacity bounds the notify channel queue.
func WithNotifyCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.NotifyCapacity = capacity
	}
}

// WithTimerTick sets the timer wheel granularity.
func WithTimerTick(tick time.Duration) Option {
	return func(opts *Options) {
		opts.TimerTick = tick
	}
}

// WithTimerWheelSize sets the slot count per wheel tier.
func WithTimerWheelSize(size int) Option {
	return func(opts *Options) {
		opts.TimerWheelSize = size
	}
}

// WithTimerTiers sets the number of wheel tiers.
func WithTimerTiers(tiers int) Option {
	return func(opts *Options) {
		opts.TimerTiers = tiers
	}
}

// WithPollTimeout caps how long one poll may block.
func WithPollTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.PollTimeout = timeout
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}
