// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now
// directly. Real() provides wall-clock behavior; Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// Warden components read time lazily (channel expiry is computed on
// each send, not by timers), so Clock carries only Now.
package clock
