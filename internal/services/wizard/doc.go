/*
Package wizard drives a loan application through its steps:

	loan amount -> personal info -> bank verification -> documents -> review

The current step is never stored. DeriveState computes it from the pending
application and the records that exist for it, so a login can resume where
the applicant left off:

	state := wizard.DeriveState(app, app.BankInfo, app.Documents)
	next := state.Route()

Every operation takes an explicit Request (actor id and session id). The
session maps to the application being worked on; an application owned by
someone else is reported as ErrApplicationNotOwned and one that has left
the pending status as ErrApplicationClosed.

Validation failures are not errors. They come back on the StepResult with
the same step as Next and the submitted input echoed. Notification failures
are logged, counted and surfaced as a warning flash; they never undo a step.

Usage:

	svc := wizard.NewService(wizard.Deps{...}, nil)

	res, err := svc.SelectAmount(ctx, req, validation.AmountForm{
	    LoanAmount:  "25000",
	    LoanPurpose: "working_capital",
	})
*/
package wizard
