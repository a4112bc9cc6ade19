/*
Package notification renders and delivers the mail sent at each wizard
milestone.

Rendering is done with html/template from the embedded templates directory.
Delivery goes through a Sender; three transports exist:

	smtp   direct delivery through an SMTP relay
	kafka  a JSON command on a topic, for a downstream mailer
	log    structured log lines only, for development

Step milestones go to the admin address; welcome, confirmation and decision
mail goes to the applicant. Callers treat a returned error as non-fatal.
*/
package notification
