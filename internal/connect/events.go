package connect

import (
	"encoding/json"
	"fmt"

	"kanmonconnect/internal/protocol"
)

// EventType names the events delivered to Params.OnEvent.
type EventType string

const (
	EventUserStateChanged         EventType = "USER_STATE_CHANGED"
	EventUserConfirmedInvoice     EventType = "USER_CONFIRMED_INVOICE"
	EventInvoicesAlreadyConfirmed EventType = "INVOICES_ALREADY_CONFIRMED"
	EventUserConfirmedDrawRequest EventType = "USER_CONFIRMED_DRAW_REQUEST"
	EventHide                     EventType = "HIDE"
)

// Event is delivered to Params.OnEvent. Switch on the concrete type.
type Event interface {
	EventType() EventType
}

type HideEvent struct{}

type UserStateChangedEvent struct {
	Data protocol.UserStateWithActionMessage
}

type UserConfirmedInvoiceEvent struct {
	Data protocol.ConfirmedInvoice
}

type InvoicesAlreadyConfirmedEvent struct {
	Data protocol.ConfirmedInvoices
}

type UserConfirmedDrawRequestEvent struct {
	Data protocol.ConfirmedDrawRequest
}

func (HideEvent) EventType() EventType                     { return EventHide }
func (UserStateChangedEvent) EventType() EventType         { return EventUserStateChanged }
func (UserConfirmedInvoiceEvent) EventType() EventType     { return EventUserConfirmedInvoice }
func (InvoicesAlreadyConfirmedEvent) EventType() EventType { return EventInvoicesAlreadyConfirmed }
func (UserConfirmedDrawRequestEvent) EventType() EventType { return EventUserConfirmedDrawRequest }

// ErrorEvent is delivered to Params.OnError.
type ErrorEvent struct {
	ErrorType protocol.ErrorType `json:"errorType"`
	Message   string             `json:"message"`
}

type wireEvent struct {
	EventType EventType `json:"eventType"`
	Data      any       `json:"data,omitempty"`
}

// EncodeEvent renders e as {"eventType": ..., "data": ...}.
func EncodeEvent(e Event) ([]byte, error) {
	var data any
	switch ev := e.(type) {
	case HideEvent:
	case UserStateChangedEvent:
		data = ev.Data
	case UserConfirmedInvoiceEvent:
		data = ev.Data
	case InvoicesAlreadyConfirmedEvent:
		data = ev.Data
	case UserConfirmedDrawRequestEvent:
		data = ev.Data
	default:
		return nil, fmt.Errorf("encode event: unsupported type %T", e)
	}
	return json.Marshal(wireEvent{EventType: e.EventType(), Data: data})
}

// eventFor translates an inbound page message into a consumer event.
// ok is false for messages that have no event (MESSAGING_READY, ERROR, outbound).
func eventFor(m protocol.Message) (Event, bool, error) {
	switch msg := m.(type) {
	case protocol.Hide:
		return HideEvent{}, true, nil
	case protocol.WorkflowUpdated:
		state, err := UserStateForStep(msg.Section, msg.NextStep)
		if err != nil {
			return nil, false, err
		}
		return UserStateChangedEvent{Data: state}, true, nil
	case protocol.WorkflowUpdatedV2:
		return UserStateChangedEvent{Data: msg.Data}, true, nil
	case protocol.UserConfirmedInvoice:
		return UserConfirmedInvoiceEvent{Data: msg.Data}, true, nil
	case protocol.InvoicesAlreadyConfirmed:
		return InvoicesAlreadyConfirmedEvent{Data: msg.Data}, true, nil
	case protocol.UserConfirmedDrawRequest:
		return UserConfirmedDrawRequestEvent{Data: msg.Data}, true, nil
	case protocol.MessagingReady, protocol.PageError, protocol.ShowConnect:
		return nil, false, nil
	default:
		return nil, false, nil
	}
}
