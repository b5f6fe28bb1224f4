// Package chatstream turns an event-framed response stream into updates of
// an optimistically edited conversation.
package chatstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kaptinlin/jsonschema"

	"chatstream/internal/domain"
)

// defaultFailureMessage is surfaced when an error event carries no message.
const defaultFailureMessage = "Stream error"

const messageSchema = `{
	"type": "object",
	"required": ["id", "role", "content"],
	"properties": {
		"id": {"type": "string", "minLength": 1, "not": {"pattern": "^temp-"}},
		"chat_id": {"type": "string"},
		"role": {"type": "string", "minLength": 1},
		"content": {"type": "string"},
		"author_id": {"type": ["string", "null"]},
		"created_at": {"type": ["string", "null"]},
		"citations": {"type": ["array", "null"], "items": {"type": "object"}}
	}
}`

// completionSchema constrains a done payload. Both messages must be
// server-issued: a placeholder id would never be retired.
var completionSchema = fmt.Sprintf(`{
	"type": "object",
	"required": ["userMessage", "aiMessage"],
	"properties": {
		"userMessage": %[1]s,
		"aiMessage": %[1]s
	}
}`, messageSchema)

type statusPayload struct {
	Status *string `json:"status"`
}

type tokenPayload struct {
	Content *string `json:"content"`
}

type donePayload struct {
	UserMessage domain.Message `json:"userMessage"`
	AIMessage   domain.Message `json:"aiMessage"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Dispatcher classifies framed events into domain actions.
//
// Dispatch returns:
//   - (action, nil) for a recognised, well-formed event;
//   - (nil, nil) for an unknown event type, which callers skip;
//   - an error wrapping domain.ErrMalformedPayload when the payload is not
//     JSON of the expected shape, which callers log and skip;
//   - any other error for a fault that must end the request.
type Dispatcher struct {
	completion *jsonschema.Schema
	logger     *slog.Logger
}

// NewDispatcher compiles the completion schema.
func NewDispatcher(logger *slog.Logger) (*Dispatcher, error) {
	schema, err := jsonschema.NewCompiler().Compile([]byte(completionSchema))
	if err != nil {
		return nil, fmt.Errorf("compile completion schema: %w", err)
	}
	return &Dispatcher{completion: schema, logger: logger}, nil
}

// Dispatch maps one framed event to an action.
func (d *Dispatcher) Dispatch(ev domain.FramedEvent) (domain.Action, error) {
	switch ev.Type {
	case domain.StreamEventStatus:
		var p statusPayload
		if err := decodeStrict(ev, &p); err != nil {
			return nil, err
		}
		if p.Status == nil {
			return nil, malformed(ev, "missing status")
		}
		return domain.StatusUpdate{Label: *p.Status}, nil

	case domain.StreamEventToken:
		var p tokenPayload
		if err := decodeStrict(ev, &p); err != nil {
			return nil, err
		}
		if p.Content == nil {
			return nil, malformed(ev, "missing content")
		}
		return domain.TokenAppend{Text: *p.Content}, nil

	case domain.StreamEventDone:
		return d.completed(ev)

	case domain.StreamEventError:
		var p errorPayload
		if err := decodeStrict(ev, &p); err != nil {
			return nil, err
		}
		msg := p.Message
		if msg == "" {
			msg = defaultFailureMessage
		}
		return domain.Failed{Message: msg}, nil

	default:
		d.logger.Debug("skipping unknown stream event", "type", ev.Type)
		return nil, nil
	}
}

func (d *Dispatcher) completed(ev domain.FramedEvent) (domain.Action, error) {
	var raw any
	if err := json.Unmarshal([]byte(ev.Payload), &raw); err != nil {
		return nil, malformed(ev, err.Error())
	}

	result := d.completion.Validate(raw)
	if !result.IsValid() {
		return nil, invalidCompletion(schemaFailure(result))
	}

	var p donePayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		return nil, invalidCompletion(err.Error())
	}
	return domain.Completed{UserMessage: p.UserMessage, AIMessage: p.AIMessage}, nil
}

func invalidCompletion(reason string) error {
	return domain.NewDomainError("Dispatcher.Dispatch", domain.ErrInvalidCompletion, "Invalid completion payload: "+reason)
}

// schemaFailure names the first failing field, e.g.
// "/aiMessage/required: Required property 'content' is missing".
func schemaFailure(result *jsonschema.EvaluationResult) string {
	errs := result.DetailedErrors()
	if len(errs) == 0 {
		return "does not match the expected shape"
	}
	paths := make([]string, 0, len(errs))
	for path := range errs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths[0] + ": " + errs[paths[0]]
}

// decodeStrict unmarshals the payload into v, reporting syntax and type
// mismatches as malformed payloads.
func decodeStrict(ev domain.FramedEvent, v any) error {
	if err := json.Unmarshal([]byte(ev.Payload), v); err != nil {
		return malformed(ev, err.Error())
	}
	return nil
}

func malformed(ev domain.FramedEvent, detail string) error {
	return domain.NewDomainError("Dispatcher.Dispatch", domain.ErrMalformedPayload, ev.Type+": "+detail)
}
