// Copyright 2026 The TrimDB Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package invariants holds checks that are only compiled into builds with
// the "invariants" or "race" build tags.
package invariants

import "runtime"

// SetFinalizer is a wrapper around runtime.SetFinalizer that is a no-op
// unless invariants are enabled.
func SetFinalizer(obj, finalizer interface{}) {
	if Enabled {
		runtime.SetFinalizer(obj, finalizer)
	}
}
