// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LLMTools returns every tool as a langchaingo function definition, ready
// to pass to a model with llms.WithTools.
func LLMTools() []llms.Tool {
	out := make([]llms.Tool, 0, len(toolInfos))
	for _, info := range toolInfos {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  info.Schema(),
			},
		})
	}
	return out
}

// FromToolCall extracts the tool name and arguments from a model tool call.
//
// Description:
//
//	Empty or "null" argument strings become an empty map so that tools
//	without required arguments can still be called. Any other non-object
//	JSON is an error.
func FromToolCall(call llms.ToolCall) (string, map[string]any, error) {
	if call.FunctionCall == nil {
		return "", nil, fmt.Errorf("tool call %q has no function", call.ID)
	}
	args := map[string]any{}
	raw := strings.TrimSpace(call.FunctionCall.Arguments)
	if raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return call.FunctionCall.Name, nil, &ArgumentError{Tool: call.FunctionCall.Name, Err: err}
		}
	}
	return call.FunctionCall.Name, args, nil
}
