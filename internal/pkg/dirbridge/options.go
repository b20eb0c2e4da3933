// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package dirbridge

import "go.uber.org/zap"

// Option is a functional option for a single bridge call.
type Option struct {
	set func(*options)
}

type options struct {
	logger *zap.Logger
}

// WithLogger makes the call log descriptor allocations at debug level.
func WithLogger(logger *zap.Logger) Option {
	return Option{
		set: func(o *options) {
			if logger != nil {
				o.logger = logger
			}
		},
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt.set(&o)
	}

	return o
}
