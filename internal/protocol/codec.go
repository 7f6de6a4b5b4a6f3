package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed means the raw string is not a JSON object with a string action.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownAction means the action is well formed but not in either taxonomy.
	ErrUnknownAction = errors.New("unknown action")
)

// DecodeError describes a message that could not be decoded.
// Callers drop the message and keep going.
type DecodeError struct {
	Action Action
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s message: %v", e.Action, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var decoders = map[Action]func(string) (Message, error){
	ActionHide:                     decodeAs[Hide],
	ActionMessagingReady:           decodeAs[MessagingReady],
	ActionWorkflowUpdated:          decodeAs[WorkflowUpdated],
	ActionWorkflowUpdatedV2:        decodeAs[WorkflowUpdatedV2],
	ActionError:                    decodeAs[PageError],
	ActionUserConfirmedInvoice:     decodeAs[UserConfirmedInvoice],
	ActionInvoicesAlreadyConfirmed: decodeAs[InvoicesAlreadyConfirmed],
	ActionUserConfirmedDrawRequest: decodeAs[UserConfirmedDrawRequest],
	ActionShowConnect:              decodeAs[ShowConnect],
}

func decodeAs[T Message](raw string) (Message, error) {
	var m T
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Encode renders m as compact JSON with the action field first.
func Encode(m Message) (string, error) {
	if m == nil {
		return "", errors.New("encode message: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode %s message: %w", m.Action(), err)
	}
	action, err := json.Marshal(string(m.Action()))
	if err != nil {
		return "", fmt.Errorf("encode %s action: %w", m.Action(), err)
	}

	var sb strings.Builder
	sb.Grow(len(body) + len(action) + 11)
	sb.WriteString(`{"action":`)
	sb.Write(action)
	if len(body) > 2 {
		sb.WriteByte(',')
		sb.Write(body[1 : len(body)-1])
	}
	sb.WriteByte('}')
	return sb.String(), nil
}

// Decode parses a raw message from either direction.
// Every failure is a *DecodeError.
func Decode(raw string) (Message, error) {
	if !gjson.Valid(raw) {
		return nil, &DecodeError{Err: fmt.Errorf("%w: invalid JSON", ErrMalformed)}
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, &DecodeError{Err: fmt.Errorf("%w: not an object", ErrMalformed)}
	}
	field := root.Get("action")
	if field.Type != gjson.String || field.Str == "" {
		return nil, &DecodeError{Err: fmt.Errorf("%w: missing action", ErrMalformed)}
	}

	action := Action(field.Str)
	decode, ok := decoders[action]
	if !ok {
		return nil, &DecodeError{Action: action, Err: ErrUnknownAction}
	}
	m, err := decode(raw)
	if err != nil {
		return nil, &DecodeError{Action: action, Err: err}
	}
	return m, nil
}

var scriptEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
)

// EscapeForScriptInjection makes raw safe to place between single quotes in
// a script literal. It does not JSON-encode; apply it to the output of Encode.
func EscapeForScriptInjection(raw string) string {
	return scriptEscaper.Replace(raw)
}
