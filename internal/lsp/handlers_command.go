// Summary: workspace/executeCommand handlers for the ghosttext.* commands driving inline
// suggestions and inline chat.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ghosttext/internal/keyrouting"
	"ghosttext/internal/logging"
)

const (
	cmdSuggest          = string(keyrouting.Trigger)
	cmdTab              = "ghosttext.tab"
	cmdAccept           = "ghosttext.accept"
	cmdDismiss          = "ghosttext.dismiss"
	cmdStatus           = "ghosttext.status"
	cmdInlineChatToggle = "ghosttext.inlineChat.toggle"
	cmdInlineChatSend   = "ghosttext.inlineChat.send"
	cmdInlineChatAccept = "ghosttext.inlineChat.accept"
	cmdInlineChatCancel = "ghosttext.inlineChat.cancel"
	cmdInlineChatZoom   = "ghosttext.inlineChat.zoom"
)

var allCommands = []string{
	cmdSuggest, cmdTab, cmdAccept, cmdDismiss, cmdStatus,
	cmdInlineChatToggle, cmdInlineChatSend, cmdInlineChatAccept, cmdInlineChatCancel, cmdInlineChatZoom,
}

// commandTimeout bounds one command including client round trips.
const commandTimeout = 10 * time.Second

var (
	errNoDocument = errors.New("unknown document")
	errDisabled   = errors.New("suggestions are disabled (no LLM backend)")
)

func (s *Server) handleExecuteCommand(req Request) {
	var p ExecuteCommandParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.reply(req.ID, nil, &RespError{Code: codeInvalidParams, Message: err.Error()})
		return
	}
	var args CommandArgs
	if len(p.Arguments) > 0 {
		if err := json.Unmarshal(p.Arguments[0], &args); err != nil {
			s.reply(req.ID, nil, &RespError{Code: codeInvalidParams, Message: err.Error()})
			return
		}
	}
	ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
	defer cancel()
	result, err := s.execute(ctx, p.Command, args)
	if err != nil {
		logging.Logf("lsp ", "%scommand %s failed: %v%s", logging.AnsiRed, p.Command, err, logging.AnsiBase)
		code := codeRequestFailed
		if errors.Is(err, errNoDocument) {
			code = codeInvalidParams
		}
		s.reply(req.ID, nil, &RespError{Code: code, Message: err.Error()})
		return
	}
	s.reply(req.ID, result, nil)
}

func (s *Server) execute(ctx context.Context, command string, args CommandArgs) (any, error) {
	d := s.getDocument(args.URI)
	if d == nil {
		return nil, fmt.Errorf("%s: %w %q", command, errNoDocument, args.URI)
	}
	if command == cmdStatus {
		return s.status(d), nil
	}
	if d.manager == nil {
		return nil, errDisabled
	}
	if args.Position != nil {
		d.setCaret(*args.Position)
	}
	switch command {
	case cmdSuggest:
		return nil, d.filter.Exec(ctx, keyrouting.Trigger)
	case cmdTab:
		return nil, d.filter.Exec(ctx, keyrouting.Tab)
	case cmdAccept:
		return nil, d.manager.Accept(ctx)
	case cmdDismiss:
		return nil, d.manager.Dismiss(ctx, "dismissed by client")
	case cmdInlineChatToggle:
		return nil, d.chat.Toggle(ctx)
	case cmdInlineChatSend:
		return nil, d.chat.Send(ctx, args.Instruction)
	case cmdInlineChatAccept:
		return nil, d.chat.Accept(ctx)
	case cmdInlineChatCancel:
		return nil, d.chat.Cancel(ctx)
	case cmdInlineChatZoom:
		var (
			z   float64
			err error
		)
		switch {
		case args.Step == "in":
			z, err = d.chat.ZoomIn(ctx)
		case args.Step == "out":
			z, err = d.chat.ZoomOut(ctx)
		case args.Step == "reset", args.Delta == 0:
			z, err = d.chat.ResetZoom(ctx)
		default:
			z, err = d.chat.Zoom(ctx, args.Delta)
		}
		return map[string]float64{"zoom": z}, err
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func (s *Server) status(d *document) StatusResult {
	if d.manager == nil {
		return StatusResult{}
	}
	return StatusResult{
		Busy:              d.manager.IsBusy(),
		HasActiveSession:  d.manager.HasActiveSession(),
		PendingSuggestion: d.manager.HasPendingSuggestion(),
		TriggerEnabled:    d.filter.QueryStatus(keyrouting.Trigger).Enabled,
		InlineChatActive:  d.chat.IsOpen(),
	}
}
