package wizard

import "errors"

// Service errors. Handlers send the actor back to the loan-amount step on
// any of them.
var (
	ErrNoActiveApplication    = errors.New("no active loan application")
	ErrApplicationNotOwned    = errors.New("loan application not found")
	ErrApplicationClosed      = errors.New("loan application is no longer editable")
	ErrNoSubmittedApplication = errors.New("no submitted loan application")
)
