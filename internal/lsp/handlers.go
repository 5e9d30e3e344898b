// Summary: JSON-RPC dispatch plus the outbound half of the protocol: replies,
// notifications and server-to-client requests correlated by id.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ghosttext/internal/logging"
)

// errDeclined is returned by call when the client answered with an error.
var errDeclined = errors.New("lsp: client returned an error")

func (s *Server) handle(req Request) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logf("lsp ", "%spanic in %s: %v%s", logging.AnsiRed, req.Method, r, logging.AnsiBase)
			if len(req.ID) != 0 {
				s.reply(req.ID, nil, &RespError{Code: codeInternalError, Message: fmt.Sprint(r)})
			}
		}
	}()
	if h, ok := s.handlers[req.Method]; ok {
		h(req)
		return
	}
	if len(req.ID) != 0 {
		s.reply(req.ID, nil, &RespError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)})
	}
}

func (s *Server) reply(id json.RawMessage, result any, err *RespError) {
	if err != nil {
		s.writeMessage(errorResponse{JSONRPC: "2.0", ID: id, Error: err})
		return
	}
	s.writeMessage(Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) notify(method string, params any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	s.writeMessage(Request{JSONRPC: "2.0", Method: method, Params: b})
	return nil
}

// call sends a request to the client and waits for the matching response.
func (s *Server) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	id := s.nextReqID()
	ch := make(chan incoming, 1)
	s.mu.Lock()
	s.pending[string(id)] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, string(id))
		s.mu.Unlock()
	}()
	s.writeMessage(Request{JSONRPC: "2.0", ID: id, Method: method, Params: b})
	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, fmt.Errorf("%s: %w: %s", method, errDeclined, msg.Error.Message)
		}
		return msg.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-s.ctx.Done():
		return nil, fmt.Errorf("%s: server stopped", method)
	}
}

// deliverResponse hands a client response to the waiting call.
func (s *Server) deliverResponse(msg incoming) {
	s.mu.RLock()
	ch, ok := s.pending[string(msg.ID)]
	s.mu.RUnlock()
	if !ok {
		logging.Logf("lsp ", "response for unknown id %s", string(msg.ID))
		return
	}
	ch <- msg
}

// nextReqID returns a unique json.RawMessage id for server-initiated requests.
func (s *Server) nextReqID() json.RawMessage {
	s.mu.Lock()
	s.nextID++
	idNum := s.nextID
	s.mu.Unlock()
	b, _ := json.Marshal(idNum)
	return b
}

// applyEdit sends workspace/applyEdit and fails unless the client applied it.
func (s *Server) applyEdit(ctx context.Context, label, uri string, edits []TextEdit) error {
	params := ApplyWorkspaceEditParams{Label: label, Edit: WorkspaceEdit{Changes: map[string][]TextEdit{uri: edits}}}
	ctx, cancel := context.WithTimeout(ctx, s.opts.EditTimeout)
	defer cancel()
	raw, err := s.call(ctx, "workspace/applyEdit", params)
	if err != nil {
		return err
	}
	var res ApplyWorkspaceEditResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("workspace/applyEdit: %w", err)
	}
	if !res.Applied {
		return fmt.Errorf("workspace/applyEdit not applied: %s", res.FailureReason)
	}
	return nil
}

func (s *Server) showMessage(kind int, msg string) {
	if err := s.notify("window/showMessage", MessageParams{Type: kind, Message: msg}); err != nil {
		logging.Logf("lsp ", "showMessage: %v", err)
	}
}
