package wizard

import "amerifund/internal/models"

type State int

const (
	StateStart State = iota
	StateNeedsPersonalInfo
	StateNeedsBankVerification
	StateNeedsDocuments
	StateNeedsReview
	StateSubmitted
)

const (
	RouteLoanAmount       = "/loan-amount"
	RoutePersonalInfo     = "/personal-info"
	RouteBankVerification = "/bank-verification"
	RouteUploadDocuments  = "/upload-documents"
	RouteReview           = "/application-review"
	RouteSubmitted        = "/application-submitted"
)

var stateNames = map[State]string{
	StateStart:                 "start",
	StateNeedsPersonalInfo:     "needs_personal_info",
	StateNeedsBankVerification: "needs_bank_verification",
	StateNeedsDocuments:        "needs_documents",
	StateNeedsReview:           "needs_review",
	StateSubmitted:             "submitted",
}

var stateRoutes = map[State]string{
	StateStart:                 RouteLoanAmount,
	StateNeedsPersonalInfo:     RoutePersonalInfo,
	StateNeedsBankVerification: RouteBankVerification,
	StateNeedsDocuments:        RouteUploadDocuments,
	StateNeedsReview:           RouteReview,
	StateSubmitted:             RouteSubmitted,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Route is the step the actor is sent to in this state.
func (s State) Route() string {
	if route, ok := stateRoutes[s]; ok {
		return route
	}
	return RouteLoanAmount
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeriveState computes the earliest incomplete step. It only inspects its
// arguments. Having at least one document is enough to reach review; the
// required set is checked on submit.
func DeriveState(app *models.LoanApplication, bank *models.BankInfo, docs []models.Document) State {
	switch {
	case app == nil:
		return StateStart
	case !app.IsPending():
		return StateSubmitted
	case !app.HasPersonalInfo():
		return StateNeedsPersonalInfo
	case bank == nil:
		return StateNeedsBankVerification
	case len(docs) == 0:
		return StateNeedsDocuments
	default:
		return StateNeedsReview
	}
}

// MissingDocuments lists the required types absent from docs, in form order.
func MissingDocuments(docs []models.Document) []models.DocumentType {
	have := make(map[models.DocumentType]bool, len(docs))
	for _, d := range docs {
		have[d.DocumentType] = true
	}

	var missing []models.DocumentType
	for _, t := range models.RequiredDocumentTypes {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	return missing
}
