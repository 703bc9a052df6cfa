// Package template renders node configuration strings against the
// accumulated run context using Handlebars syntax.
//
// Node configs reference upstream output with expressions like
// {{manualData.email}} or {{json apiCall.httpResponse.data}}. The json
// helper serializes a context value so it can be embedded in request
// bodies and prompts.
package template

import (
	"encoding/json"
	"fmt"
	"html"
	"sync"

	"github.com/aymerick/raymond"
)

var registerOnce sync.Once

// registerHelpers installs the shared helpers on raymond's global
// registry. Raymond panics on duplicate registration, so this must run
// exactly once per process.
func registerHelpers() {
	raymond.RegisterHelper("json", func(value interface{}) raymond.SafeString {
		encoded, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return raymond.SafeString(encoded)
	})
}

// Render evaluates a Handlebars template against the given context.
// Missing variables render as empty strings, matching editor behavior
// where a node references output that an upstream node never produced.
func Render(tpl string, ctx map[string]any) (string, error) {
	registerOnce.Do(registerHelpers)

	out, err := raymond.Render(tpl, ctx)
	if err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}
	return out, nil
}

// RenderUnescaped renders a template and decodes HTML entities in the
// result. Handlebars escapes interpolated values by default; chat
// message content must go out with literal quotes and ampersands.
func RenderUnescaped(tpl string, ctx map[string]any) (string, error) {
	out, err := Render(tpl, ctx)
	if err != nil {
		return "", err
	}
	return html.UnescapeString(out), nil
}
