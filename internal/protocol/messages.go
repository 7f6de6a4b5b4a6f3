package protocol

// Action is the discriminant carried in the "action" field of every message.
type Action string

// Actions posted by the page (web -> native).
const (
	ActionHide                     Action = "HIDE"
	ActionMessagingReady           Action = "MESSAGING_READY"
	ActionWorkflowUpdated          Action = "WORKFLOW_UPDATED"
	ActionWorkflowUpdatedV2        Action = "WORKFLOW_UPDATED_V2"
	ActionError                    Action = "ERROR"
	ActionUserConfirmedInvoice     Action = "USER_CONFIRMED_INVOICE"
	ActionInvoicesAlreadyConfirmed Action = "INVOICES_ALREADY_CONFIRMED"
	ActionUserConfirmedDrawRequest Action = "USER_CONFIRMED_DRAW_REQUEST"
)

// Actions sent to the page (native -> web).
const (
	ActionShowConnect Action = "SHOW_KANMON_CONNECT"
)

// Message is implemented by every member of both taxonomies.
// The set is closed: only types in this package satisfy it.
type Message interface {
	Action() Action
	isMessage()
}

// Inbound reports whether m travels from the page to the host.
func Inbound(m Message) bool {
	_, ok := m.(ShowConnect)
	return !ok
}

// Hide asks the host to dismiss the presentation without destroying the page.
type Hide struct{}

// MessagingReady signals the page has attached its message listener.
type MessagingReady struct{}

// WorkflowUpdated reports the next workflow step; the host derives the user state.
type WorkflowUpdated struct {
	Section  Section `json:"section"`
	NextStep string  `json:"nextStep"`
}

// WorkflowUpdatedV2 carries a user state already computed by the page.
type WorkflowUpdatedV2 struct {
	Data UserStateWithActionMessage `json:"data"`
}

// PageError is an error the page reports about itself.
type PageError struct {
	ErrorType ErrorType `json:"errorType"`
	Message   string    `json:"message"`
}

type ConfirmedInvoice struct {
	Invoice             ExternalInvoice `json:"invoice"`
	RemainingLimitCents int64           `json:"remainingLimitCents"`
}

type UserConfirmedInvoice struct {
	Data ConfirmedInvoice `json:"data"`
}

type ConfirmedInvoices struct {
	Invoices []ExternalInvoice `json:"invoices"`
}

type InvoicesAlreadyConfirmed struct {
	Data ConfirmedInvoices `json:"data"`
}

type ConfirmedDrawRequest struct {
	DrawRequest         ExternalDrawRequest `json:"drawRequest"`
	RemainingLimitCents int64               `json:"remainingLimitCents"`
}

type UserConfirmedDrawRequest struct {
	Data ConfirmedDrawRequest `json:"data"`
}

// ShowConnect opens the widget, optionally on a specific component.
type ShowConnect struct {
	Component         Component `json:"component,omitempty"`
	SessionToken      string    `json:"sessionToken,omitempty"`
	InvoiceID         string    `json:"invoiceId,omitempty"`
	PlatformInvoiceID string    `json:"platformInvoiceId,omitempty"`
}

func (Hide) Action() Action                     { return ActionHide }
func (MessagingReady) Action() Action           { return ActionMessagingReady }
func (WorkflowUpdated) Action() Action          { return ActionWorkflowUpdated }
func (WorkflowUpdatedV2) Action() Action        { return ActionWorkflowUpdatedV2 }
func (PageError) Action() Action                { return ActionError }
func (UserConfirmedInvoice) Action() Action     { return ActionUserConfirmedInvoice }
func (InvoicesAlreadyConfirmed) Action() Action { return ActionInvoicesAlreadyConfirmed }
func (UserConfirmedDrawRequest) Action() Action { return ActionUserConfirmedDrawRequest }
func (ShowConnect) Action() Action              { return ActionShowConnect }

func (Hide) isMessage()                     {}
func (MessagingReady) isMessage()           {}
func (WorkflowUpdated) isMessage()          {}
func (WorkflowUpdatedV2) isMessage()        {}
func (PageError) isMessage()                {}
func (UserConfirmedInvoice) isMessage()     {}
func (InvoicesAlreadyConfirmed) isMessage() {}
func (UserConfirmedDrawRequest) isMessage() {}
func (ShowConnect) isMessage()              {}
