// Summary: Turns a finished suggestion into a ghost-text proposal, submits it to the host
// editor and remembers the session the host reported back.
package render

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"ghosttext/internal/logging"
)

// Span is an edit range in the document. Proposals always use Length 0.
type Span struct {
	Offset int
	Length int
}

// Proposal is one immutable ghost-text suggestion.
type Proposal struct {
	ID         string
	Span       Span
	Text       string
	CaretAfter int
}

// SessionHandle identifies a proposal the host is currently displaying.
type SessionHandle struct {
	ID         string
	ProposalID string
}

// Host is the single seam to the editor's inline-completion display. A nil
// handle with a nil error means the host declined to show the proposal.
type Host interface {
	TryDisplay(ctx context.Context, p Proposal) (*SessionHandle, error)
	Dismiss(ctx context.Context, h *SessionHandle) error
}

var errNilHost = errors.New("render: nil host")

// NewProposal builds the zero-length insertion proposal for text at offset.
func NewProposal(offset int, text string) Proposal {
	return Proposal{
		ID:         uuid.NewString(),
		Span:       Span{Offset: offset},
		Text:       text,
		CaretAfter: offset + len(text),
	}
}

// Renderer owns the active-session tag for one view. Like the rest of the
// suggestion state it is used from the dispatch loop only.
type Renderer struct {
	host     Host
	active   *SessionHandle
	proposal Proposal
}

// New returns a renderer bound to host.
func New(host Host) (*Renderer, error) {
	if host == nil {
		return nil, errNilHost
	}
	return &Renderer{host: host}, nil
}

// Show submits a proposal for text at offset. A declined display returns a
// nil handle and leaves no active session.
func (r *Renderer) Show(ctx context.Context, text string, offset int) (*SessionHandle, error) {
	r.active = nil
	p := NewProposal(offset, text)
	h, err := r.host.TryDisplay(ctx, p)
	if err != nil {
		return nil, err
	}
	if h == nil {
		logging.Logf("render ", "host declined proposal %s", p.ID)
		return nil, nil
	}
	if h.ProposalID == "" {
		h.ProposalID = p.ID
	}
	r.active = h
	r.proposal = p
	return h, nil
}

// HasActiveSession reports whether a displayed proposal is tagged.
func (r *Renderer) HasActiveSession() bool { return r.active != nil }

// current returns the tagged session and its proposal.
func (r *Renderer) current() (*SessionHandle, Proposal, bool) {
	if r.active == nil {
		return nil, Proposal{}, false
	}
	return r.active, r.proposal, true
}

// Dismiss asks the host to hide the active proposal and clears the tag.
func (r *Renderer) Dismiss(ctx context.Context) error {
	h := r.active
	r.Clear()
	if h == nil {
		return nil
	}
	return r.host.Dismiss(ctx, h)
}

// Clear drops the tag without telling the host, e.g. after the host
// accepted the proposal itself.
func (r *Renderer) Clear() {
	r.active = nil
	r.proposal = Proposal{}
}
