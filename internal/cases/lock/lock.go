// Package lock provides per-case mutual exclusion for pipeline runs and human
// mutations. Acquisition never waits: a held case reports a
// processing-in-progress conflict so callers retry later instead of queuing.
package lock

import (
	"context"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Locker guards a case. Release must be called exactly once per successful
// TryAcquire.
type Locker interface {
	TryAcquire(ctx context.Context, caseID id.CaseID) (release func(), err error)
}

// ErrInProgress builds the conflict returned for a held case.
func ErrInProgress(caseID id.CaseID) error {
	return dErrors.NewField(dErrors.CodeProcessing, "case_id", "case "+caseID.String()+" is being processed, retry later")
}

// IsConflict reports whether err is a held-lock conflict.
func IsConflict(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeProcessing)
}
