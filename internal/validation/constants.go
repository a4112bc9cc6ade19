package validation

const (
	// Password requirements
	MinPasswordLength = 8
	MaxPasswordLength = 72

	// Username requirements
	MinUsernameLength = 4
	MaxUsernameLength = 64

	// Applicant age bounds, inclusive
	MinApplicantAge = 18
	MaxApplicantAge = 100

	// DateLayout is the accepted date-of-birth format.
	DateLayout = "2006-01-02"
)

var LoanPurposes = []string{
	"business_expansion",
	"working_capital",
	"equipment_purchase",
	"real_estate",
	"refinance",
	"startup",
	"other",
}

var Genders = []string{"male", "female", "other", "prefer_not_to_say"}

var EmploymentStatuses = []string{
	"employed_full_time",
	"employed_part_time",
	"self_employed",
	"unemployed",
	"retired",
	"student",
	"other",
}

var AccountTypes = []string{"checking", "savings", "business_checking", "business_savings"}

// USStates holds the two-letter codes of the 50 states and DC.
var USStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
	"DC",
}

// affirmative values accepted for the review consent flag
var affirmative = []string{"yes", "y", "true", "on", "1"}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
