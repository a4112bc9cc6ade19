package validation

import "time"

// Age returns completed years between dob and today. A birthday that has
// not yet occurred this year does not count, so Feb 29 birthdays roll over
// on Mar 1 in non-leap years.
func Age(dob, today time.Time) int {
	years := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		years--
	}
	return years
}
