package connect

import (
	"errors"
	"fmt"

	"kanmonconnect/internal/protocol"
)

// ErrUnknownStep is returned for a workflow step missing from StepStates.
// Every step the page can report must have an entry.
var ErrUnknownStep = errors.New("unknown workflow step")

// StepState is the consumer-facing meaning of one workflow step.
type StepState struct {
	UserState      protocol.UserState
	ActionMessage  string
	ActionRequired bool
}

const (
	msgStartFlow        = "Apply for financing"
	msgFinishOnboarding = "Finish your application"
	msgManualReview     = "Your application is being reviewed"
	msgWaitingForOffers = "Your offers are being prepared"
	msgViewOffers       = "View your offers"
	msgAcceptOffer      = "Finish accepting your offer"
	msgOfferAccepted    = "Your offer has been accepted"
	msgOffersExpired    = "Your offers have expired"
	msgNoOffers         = "No offers are available right now"
	msgServicing        = "Manage your financing"
	msgOtherUser        = "Waiting on another owner of your business"
	msgIncomplete       = "Your application is incomplete"
	msgWithdrawn        = "Your application was withdrawn"
)

// StepStates maps every workflow step name the page reports to its state.
// Onboarding steps are nested under "ONBOARDING.".
var StepStates = map[string]StepState{
	// pre-onboarding
	"SELECT_USER_ROLES":        {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"BLOCKED_ON_PRIMARY_OWNER": {protocol.UserStateOtherUserInputRequired, msgOtherUser, false},
	"PRIMARY_OWNER_CONFLICT":   {protocol.UserStateOtherUserInputRequired, msgOtherUser, false},

	// onboarding
	"ONBOARDING.START_FLOW":                               {protocol.UserStateStartFlow, msgStartFlow, true},
	"ONBOARDING.SELECT_PRODUCTS":                          {protocol.UserStateStartFlow, msgStartFlow, true},
	"ONBOARDING.COLLECT_PERSONAL_DETAILS":                 {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_BUSINESS_DETAILS":                 {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_SECONDARY_BUSINESS_OWNER_DETAILS": {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_PERSONAL_PLAID":                   {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_PLAID":                            {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_RAILZ":                            {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_EXISTING_DEBT":                    {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_REFINANCE_OPTIONS":                {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"ONBOARDING.COLLECT_CONSENT":                          {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"COLLECT_BANK_STATEMENTS":                             {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"COLLECT_BANK_INFO":                                   {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"REQUEST_ADDITIONAL_USER_INPUT":                       {protocol.UserStateUserInputRequired, msgFinishOnboarding, true},
	"WAITING_FOR_OFFERS":                                  {protocol.UserStateWaitingForOffers, msgWaitingForOffers, false},
	"ONBOARDING_ERROR":                                    {protocol.UserStateInManualReview, msgManualReview, false},

	// offers
	"OFFERS_PENDING":                {protocol.UserStateWaitingForOffers, msgWaitingForOffers, false},
	"OFFER_REFRESH_PENDING":         {protocol.UserStateWaitingForOffers, msgWaitingForOffers, false},
	"DISPLAY_OFFERS":                {protocol.UserStateViewOffers, msgViewOffers, true},
	"COLLECT_LEGAL_AGREEMENTS":      {protocol.UserStateViewOffers, msgAcceptOffer, true},
	"SELECT_PRIMARY_BANK_ACCOUNT":   {protocol.UserStateViewOffers, msgAcceptOffer, true},
	"COLLECT_TAX_ID":                {protocol.UserStateViewOffers, msgAcceptOffer, true},
	"COLLECT_PERSONA":               {protocol.UserStateViewOffers, msgAcceptOffer, true},
	"COLLECT_PERSONAL_PHONE_NUMBER": {protocol.UserStateViewOffers, msgAcceptOffer, true},
	"OFFER_ACCEPTED":                {protocol.UserStateOfferAccepted, msgOfferAccepted, false},
	"ISSUED_PRODUCT_CREATED":        {protocol.UserStateOfferAccepted, msgOfferAccepted, false},
	"OFFERS_EXPIRED":                {protocol.UserStateOffersExpired, msgOffersExpired, false},
	"NO_OFFERS_EXTENDED":            {protocol.UserStateNoOffersExtended, msgNoOffers, false},
	"LOAN_APPLICATION_INCOMPLETE":   {protocol.UserStateLoanApplicationIncomplete, msgIncomplete, true},
	"LOAN_APPLICATION_WITHDRAWN":    {protocol.UserStateLoanApplicationWithdrawn, msgWithdrawn, false},

	// servicing
	"INIT_SERVICING_FLOW": {protocol.UserStateServicing, msgServicing, false},
	"READY_FOR_SERVICING": {protocol.UserStateServicing, msgServicing, false},
}

// UserStateForStep derives the user state for a WORKFLOW_UPDATED message.
func UserStateForStep(section protocol.Section, step string) (protocol.UserStateWithActionMessage, error) {
	st, ok := StepStates[step]
	if !ok {
		return protocol.UserStateWithActionMessage{}, fmt.Errorf("%w: %q in section %s", ErrUnknownStep, step, section)
	}
	return protocol.UserStateWithActionMessage{
		UserState:      st.UserState,
		ActionMessage:  st.ActionMessage,
		ActionRequired: st.ActionRequired,
		Section:        section,
	}, nil
}
