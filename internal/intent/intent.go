// Package intent models an already-classified caller intent and normalises
// its action label.
package intent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/manifestd/internal/manifest"
)

// Action labels understood downstream.
const (
	ActionSearch = "BUSCAR"
	ActionCreate = "CRIAR"
	ActionUpdate = "ATUALIZAR"
	ActionDelete = "DELETAR"
)

const FormatJSON = "json"

var ErrUnsupportedFormat = errors.New("intent: unsupported response format")

var actionAliases = map[string]string{
	"search":    ActionSearch,
	"create":    ActionCreate,
	"update":    ActionUpdate,
	"delete":    ActionDelete,
	"buscar":    ActionSearch,
	"criar":     ActionCreate,
	"atualizar": ActionUpdate,
	"deletar":   ActionDelete,
}

type Request struct {
	ProtoAIIntent  string         `json:"protoai_intent,omitempty"`
	Action         string         `json:"action"`
	Scope          string         `json:"scope"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	ResponseFormat string         `json:"response_format,omitempty"`
}

// NormalizeAction maps a classifier label onto an action. Unknown labels
// fall back to ActionSearch.
func NormalizeAction(label string) string {
	if action, ok := actionAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return action
	}
	return ActionSearch
}

// Normalize returns req with a canonical action, trimmed scope and response
// format defaulted to json.
func Normalize(req Request) (Request, error) {
	scope, err := manifest.NormalizeScope(req.Scope)
	if err != nil {
		return Request{}, err
	}
	req.Scope = scope
	req.Action = NormalizeAction(req.Action)

	format := strings.ToLower(strings.TrimSpace(req.ResponseFormat))
	switch format {
	case "", FormatJSON:
		req.ResponseFormat = FormatJSON
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.ResponseFormat)
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	return req, nil
}
