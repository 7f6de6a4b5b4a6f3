package protocol

// Section is the top-level workflow area a step belongs to.
type Section string

const (
	SectionOffer      Section = "OFFER"
	SectionServicing  Section = "SERVICING"
	SectionOnboarding Section = "ONBOARDING"
)

// UserState is the consumer-facing summary of where the user is in the workflow.
type UserState string

const (
	UserStateStartFlow                 UserState = "START_FLOW"
	UserStateInManualReview            UserState = "IN_MANUAL_REVIEW"
	UserStateOtherUserInputRequired    UserState = "OTHER_USER_INPUT_REQUIRED"
	UserStateUserInputRequired         UserState = "USER_INPUT_REQUIRED"
	UserStateWaitingForOffers          UserState = "WAITING_FOR_OFFERS"
	UserStateNoOffersExtended          UserState = "NO_OFFERS_EXTENDED"
	UserStateOffersExpired             UserState = "OFFERS_EXPIRED"
	UserStateViewOffers                UserState = "VIEW_OFFERS"
	UserStateOfferAccepted             UserState = "OFFER_ACCEPTED"
	UserStateServicing                 UserState = "SERVICING"
	UserStateLoanApplicationIncomplete UserState = "LOAN_APPLICATION_INCOMPLETE"
	UserStateLoanApplicationWithdrawn  UserState = "LOAN_APPLICATION_WITHDRAWN"
)

// UserStateWithActionMessage is the payload of a user-state-changed event.
type UserStateWithActionMessage struct {
	UserState      UserState `json:"userState"`
	ActionMessage  string    `json:"actionMessage"`
	ActionRequired bool      `json:"actionRequired"`
	Section        Section   `json:"section"`
}

// ErrorType classifies errors reported by the embedded page.
type ErrorType string

const (
	ErrorTypeInvalidSessionToken              ErrorType = "INVALID_SESSION_TOKEN_EXCEPTION"
	ErrorTypeUnexpected                       ErrorType = "UNEXPECTED_ERROR"
	ErrorTypeCustomInitializationNameNotFound ErrorType = "CUSTOM_INITIALIZATION_NAME_NOT_FOUND"
)

// Component names a widget view the page can open when shown.
type Component string

const (
	ComponentSummary                                   Component = "SUMMARY"
	ComponentSessionInvoiceFlow                        Component = "SESSION_INVOICE_FLOW"
	ComponentSessionInvoiceFlowWithInvoiceFile         Component = "SESSION_INVOICE_FLOW_WITH_INVOICE_FILE"
	ComponentSessionAccountsPayableInvoiceFlow         Component = "SESSION_ACCOUNTS_PAYABLE_INVOICE_FLOW"
	ComponentSessionAccountsPayableInvoiceFlowWithFile Component = "SESSION_ACCOUNTS_PAYABLE_INVOICE_FLOW_WITH_INVOICE_FILE"
	ComponentUploadInvoice                             Component = "UPLOAD_INVOICE"
	ComponentDrawRequest                               Component = "DRAW_REQUEST"
	ComponentInvoiceHistory                            Component = "INVOICE_HISTORY"
	ComponentPayNow                                    Component = "PAY_NOW"
	ComponentDownloadAgreements                        Component = "DOWNLOAD_AGREEMENTS"
	ComponentPaymentHistory                            Component = "PAYMENT_HISTORY"
	ComponentStatements                                Component = "STATEMENTS"
)

// Components lists every known component in declaration order.
var Components = []Component{
	ComponentSummary,
	ComponentSessionInvoiceFlow,
	ComponentSessionInvoiceFlowWithInvoiceFile,
	ComponentSessionAccountsPayableInvoiceFlow,
	ComponentSessionAccountsPayableInvoiceFlowWithFile,
	ComponentUploadInvoice,
	ComponentDrawRequest,
	ComponentInvoiceHistory,
	ComponentPayNow,
	ComponentDownloadAgreements,
	ComponentPaymentHistory,
	ComponentStatements,
}

// Known reports whether c is one of Components.
func (c Component) Known() bool {
	for _, k := range Components {
		if k == c {
			return true
		}
	}
	return false
}

// RequiresSession reports whether c only works with a session token.
func (c Component) RequiresSession() bool {
	switch c {
	case ComponentSessionInvoiceFlow,
		ComponentSessionInvoiceFlowWithInvoiceFile,
		ComponentSessionAccountsPayableInvoiceFlow,
		ComponentSessionAccountsPayableInvoiceFlowWithFile:
		return true
	}
	return false
}

// ProductType is a financing product the onboarding can be restricted to.
type ProductType string

const (
	ProductAccountsPayableFinancing ProductType = "ACCOUNTS_PAYABLE_FINANCING"
	ProductInvoiceFinancing         ProductType = "INVOICE_FINANCING"
	ProductTermLoan                 ProductType = "TERM_LOAN"
	ProductMCA                      ProductType = "MCA"
	ProductLineOfCredit             ProductType = "LINE_OF_CREDIT"
	ProductIntegratedMCA            ProductType = "INTEGRATED_MCA"
)

var ProductTypes = []ProductType{
	ProductAccountsPayableFinancing,
	ProductInvoiceFinancing,
	ProductTermLoan,
	ProductMCA,
	ProductLineOfCredit,
	ProductIntegratedMCA,
}

func (p ProductType) Known() bool {
	for _, k := range ProductTypes {
		if k == p {
			return true
		}
	}
	return false
}

type ExternalInvoiceStatus string

const (
	InvoiceCreated    ExternalInvoiceStatus = "INVOICE_CREATED"
	InvoiceFunded     ExternalInvoiceStatus = "INVOICE_FUNDED"
	InvoicePaidInFull ExternalInvoiceStatus = "INVOICE_PAID_IN_FULL"
	InvoiceRejected   ExternalInvoiceStatus = "REJECTED"
	InvoiceDefaulted  ExternalInvoiceStatus = "DEFAULTED"
	InvoiceLate       ExternalInvoiceStatus = "LATE"
)

type ExternalDrawRequestStatus string

const (
	DrawRequestCreated    ExternalDrawRequestStatus = "DRAW_REQUEST_CREATED"
	DrawRequestFunded     ExternalDrawRequestStatus = "DRAW_REQUEST_FUNDED"
	DrawRequestPaidInFull ExternalDrawRequestStatus = "DRAW_REQUEST_PAID_IN_FULL"
	DrawRequestRejected   ExternalDrawRequestStatus = "REJECTED"
	DrawRequestDefaulted  ExternalDrawRequestStatus = "DEFAULTED"
)

type PayorType string

const (
	PayorBusiness   PayorType = "BUSINESS"
	PayorIndividual PayorType = "INDIVIDUAL"
)

type Address struct {
	AddressLineOne string  `json:"addressLineOne"`
	AddressLineTwo *string `json:"addressLineTwo,omitempty"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	Zipcode        string  `json:"zipcode"`
	Country        string  `json:"country"`
	Verified       *bool   `json:"verified,omitempty"`
}

type InvoiceRepaymentScheduleItem struct {
	RepaymentDate                 string `json:"repaymentDate"`
	RepaymentAmountCents          int64  `json:"repaymentAmountCents"`
	RepaymentFeeAmountCents       int64  `json:"repaymentFeeAmountCents"`
	RepaymentPrincipalAmountCents int64  `json:"repaymentPrincipalAmountCents"`
}

type InvoiceRepaymentSchedule struct {
	Schedule []InvoiceRepaymentScheduleItem `json:"schedule"`
}

// ExternalInvoice is an invoice as reported by the embedded page.
// Nullable wire fields are pointers.
type ExternalInvoice struct {
	ID                               string                   `json:"id"`
	PlatformInvoiceID                *string                  `json:"platformInvoiceId"`
	PlatformInvoiceNumber            *string                  `json:"platformInvoiceNumber"`
	InvoiceAmountCents               int64                    `json:"invoiceAmountCents"`
	InvoiceDueDate                   *string                  `json:"invoiceDueDate"`
	InvoiceIssuedDate                *string                  `json:"invoiceIssuedDate"`
	PayorType                        *PayorType               `json:"payorType"`
	PayorBusinessName                *string                  `json:"payorBusinessName"`
	PayorEmail                       *string                  `json:"payorEmail"`
	PayorAddress                     *Address                 `json:"payorAddress"`
	PayorFirstName                   *string                  `json:"payorFirstName"`
	PayorMiddleName                  *string                  `json:"payorMiddleName"`
	PayorLastName                    *string                  `json:"payorLastName"`
	State                            ExternalInvoiceStatus    `json:"state,omitempty"`
	IssuedProductID                  string                   `json:"issuedProductId"`
	FeeAmountCents                   int64                    `json:"feeAmountCents"`
	PrincipalAmountCents             int64                    `json:"principalAmountCents"`
	InvoiceAdvanceAmountCents        int64                    `json:"invoiceAdvanceAmountCents"`
	RepaymentAmountCents             int64                    `json:"repaymentAmountCents"`
	RepaymentSchedule                InvoiceRepaymentSchedule `json:"repaymentSchedule"`
	AdvanceRatePercentage            float64                  `json:"advanceRatePercentage"`
	TransactionFeePercentage         float64                  `json:"transactionFeePercentage"`
	AmountRequestedForFinancingCents int64                    `json:"amountRequestedForFinancingCents"`
	CreatedAt                        string                   `json:"createdAt"`
	UpdatedAt                        string                   `json:"updatedAt"`
}

type ExternalDrawRequest struct {
	ID                      string                    `json:"id"`
	IssuedProductID         string                    `json:"issuedProductId"`
	AmountCents             int64                     `json:"amountCents"`
	DisbursementAmountCents int64                     `json:"disbursementAmountCents"`
	FeeAmountCents          int64                     `json:"feeAmountCents"`
	InterestRatePercentage  float64                   `json:"interestRatePercentage"`
	FeePercentage           float64                   `json:"feePercentage"`
	Status                  ExternalDrawRequestStatus `json:"status"`
	RepaymentDurationMonths int                       `json:"repaymentDurationMonths"`
	CreatedAt               string                    `json:"createdAt"`
	UpdatedAt               string                    `json:"updatedAt"`
}
