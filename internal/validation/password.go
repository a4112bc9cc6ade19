package validation

// Password checks length bounds; bcrypt ignores input past 72 bytes.
func (v *Validator) Password(field, password string) {
	v.Required(field, password)
	v.MinLength(field, password, MinPasswordLength)
	v.MaxLength(field, password, MaxPasswordLength)
}

// PasswordConfirmation checks that the confirmation matches.
func (v *Validator) PasswordConfirmation(field, password, confirm string) {
	v.Check(password == confirm, field, "Passwords must match.")
}
