// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayseljafar/Longevity-check/internal/model"
)

const staticName = "static"

func init() {
	Register(staticName, NewStatic)
}

// Static answers without any network call. It is meant for demos and for
// running the relay and frontends locally without credentials.
type Static struct{}

// NewStatic builds the offline provider. Options are ignored.
func NewStatic(Options) (Provider, error) {
	return Static{}, nil
}

// Name implements Provider.
func (Static) Name() string { return staticName }

// Complete echoes the latest user message back in a canned reply. JSON
// requests get an empty goals object.
func (Static) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if req.JSON {
		return Response{Content: `{"goals":[]}`, Model: staticName}, nil
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == model.RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return Response{}, &Error{Kind: KindInvalidRequest, Provider: staticName, Message: "no user message"}
	}

	reply := fmt.Sprintf("You asked: %q. The offline assistant cannot give personalised advice. "+
		"Configure a completion provider for full answers, and consult a healthcare professional "+
		"before starting any supplement.", last)
	return Response{Content: reply, Model: staticName}, nil
}
