// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import "fmt"

// Kind identifies which integrity check failed.
type Kind int

const (
	// KindCredentialMissing means a required credential or config
	// value is absent.
	KindCredentialMissing Kind = iota

	// KindLockHeld means another live process holds the process lock.
	KindLockHeld

	// KindNotWritable means the persistence directory rejects writes.
	KindNotWritable

	// KindStoreLocked means the external store carries a lock file.
	KindStoreLocked

	// KindChainBroken means the decision chain failed verification.
	KindChainBroken
)

// String returns the kind's short name.
func (k Kind) String() string {
	switch k {
	case KindCredentialMissing:
		return "credential_missing"
	case KindLockHeld:
		return "lock_held"
	case KindNotWritable:
		return "not_writable"
	case KindStoreLocked:
		return "store_locked"
	case KindChainBroken:
		return "chain_broken"
	default:
		return "unknown"
	}
}

// IntegrityError is a fatal boot failure. Every instance names the
// exact remediation, so the operator never sees a generic failure.
// Inspect with errors.As.
type IntegrityError struct {
	// Kind identifies the failed check.
	Kind Kind

	// Message describes what was found.
	Message string

	// Remediation tells the operator what to do about it.
	Remediation string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed (%s): %s; %s",
		e.Kind, e.Message, e.Remediation)
}
