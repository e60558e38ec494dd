// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Library code accepts a Clock instead of calling time.Now or
// time.After directly. In production, Real() provides the standard
// library behavior. In tests, Fake() provides a clock that moves only
// when Advance or Set is called, which makes token-bucket refills,
// rolling 24-hour windows and job lease expiry deterministic:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	limiter := ratelimit.New(ratelimit.Config{Clock: c, ...})
//	c.Advance(10 * time.Minute) // one token refilled
package clock
