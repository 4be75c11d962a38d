package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/criteria"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/mailbox"
	"github.com/dvloznov/finance-reconciler/internal/processor"
)

// MessageStep is a single step in the processing of one message.
type MessageStep interface {
	Execute(ctx context.Context, state *MessageState) error
}

// MessageState holds the state shared by the steps of one message. A step
// that reaches a terminal outcome sets Done.
type MessageState struct {
	Handle     mailbox.Handle
	Raw        []byte
	Message    *mailbox.Message
	Processor  processor.Processor
	Candidates []domain.Account
	Results    []Result
	Outcome    Outcome
	Done       bool
}

func (s *MessageState) finish(o Outcome) {
	s.Outcome = o
	s.Done = true
}

func (s *MessageState) sender() string {
	if s.Message == nil {
		return ""
	}
	if s.Message.From != "" {
		return s.Message.From
	}
	return s.Message.Sender
}

// Step 1: FetchStep retrieves the raw message.
type FetchStep struct {
	Source mailbox.Source
}

func (s *FetchStep) Execute(ctx context.Context, state *MessageState) error {
	raw, err := s.Source.FetchBody(ctx, state.Handle)
	if err != nil {
		return &fetchError{err: err}
	}
	state.Raw = raw
	return nil
}

// fetchError marks a transport failure, as opposed to a bad message.
type fetchError struct{ err error }

func (e *fetchError) Error() string { return "fetching message: " + e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// Step 2: ParseStep decodes the message to text.
type ParseStep struct{}

func (s *ParseStep) Execute(ctx context.Context, state *MessageState) error {
	msg, err := mailbox.Parse(state.Raw)
	if err != nil {
		return err
	}
	state.Message = msg
	return nil
}

// Step 2b: WindowStep skips messages sent before the start of the search
// window. Mailbox searches match whole days, so a window that starts mid-day
// returns earlier messages of that day too.
type WindowStep struct {
	Pipeline *Pipeline
	Since    time.Time
}

func (s *WindowStep) Execute(ctx context.Context, state *MessageState) error {
	if s.Pipeline.messageTime(state.Message).Before(s.Since) {
		state.finish(SkippedBeforeWindow)
	}
	return nil
}

// Step 3: RequireSenderStep rejects messages that cannot be attributed.
type RequireSenderStep struct{}

func (s *RequireSenderStep) Execute(ctx context.Context, state *MessageState) error {
	if state.sender() == "" {
		return ErrNoSender
	}
	return nil
}

// Step 4: ResolveProcessorStep picks the processor of the sender.
type ResolveProcessorStep struct {
	Registry *processor.Registry
}

func (s *ResolveProcessorStep) Execute(ctx context.Context, state *MessageState) error {
	proc, ok := s.Registry.Resolve(state.sender())
	if !ok {
		state.finish(SkippedNoProcessor)
		return nil
	}
	state.Processor = proc
	return nil
}

// Step 5a: FixedCandidatesStep offers one known account.
type FixedCandidatesStep struct {
	Account domain.Account
}

func (s *FixedCandidatesStep) Execute(ctx context.Context, state *MessageState) error {
	state.Candidates = []domain.Account{s.Account}
	return nil
}

// Step 5b: EventCandidatesStep offers the accounts of the sending
// institution, plus card and loan accounts whose search text occurs in the
// message. Alerts for a liability often come from the bank of the account
// that pays into it.
type EventCandidatesStep struct {
	Pipeline *Pipeline
}

func (s *EventCandidatesStep) Execute(ctx context.Context, state *MessageState) error {
	stores := s.Pipeline.stores
	seen := make(map[int64]bool)
	var out []domain.Account

	bank, found, err := stores.BankByAlertEmail(ctx, state.Processor.Institution().AlertEmail)
	if err != nil {
		return fmt.Errorf("loading bank: %w", err)
	}
	if found {
		accts, err := stores.AccountsOfBank(ctx, bank)
		if err != nil {
			return fmt.Errorf("loading accounts of bank %d: %w", bank.ID, err)
		}
		for _, a := range accts {
			if a.Type == domain.AccountCash {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
	}

	c := criteria.In("type", string(domain.AccountCreditCard), string(domain.AccountLoan))
	c.Sorts = []criteria.Sort{{Key: "id", Ascending: true}}
	liabilities, err := stores.Accounts.FindAll(ctx, c)
	if err != nil {
		return fmt.Errorf("loading card and loan accounts: %w", err)
	}
	for _, a := range liabilities {
		if seen[a.ID] || !a.MatchesText(state.Message.Text) {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}

	if len(out) == 0 {
		state.finish(RejectedNoMatch)
		return nil
	}
	state.Candidates = out
	return nil
}

// Step 6: PersistStep runs the processor per candidate and persists each
// draft through the balance gate.
type PersistStep struct {
	Pipeline *Pipeline
}

func (s *PersistStep) Execute(ctx context.Context, state *MessageState) error {
	msg := state.Message
	at := s.Pipeline.messageTime(msg)

	for _, acct := range state.Candidates {
		draft, ok := state.Processor.Process(msg.Text, state.sender(), acct, at)
		if !ok {
			continue
		}
		outcome, id, err := s.Pipeline.persist(ctx, acct.ID, draft, at)
		state.Results = append(state.Results, Result{
			Handle:        state.Handle,
			Sender:        state.sender(),
			AccountID:     acct.ID,
			Outcome:       outcome,
			TransactionID: id,
			Err:           err,
		})
	}
	if len(state.Results) == 0 {
		state.finish(RejectedNoMatch)
		return nil
	}
	state.Done = true
	return nil
}

// messagePipeline executes a sequence of steps in order.
type messagePipeline struct {
	steps []MessageStep
}

func newMessagePipeline(steps ...MessageStep) *messagePipeline {
	return &messagePipeline{steps: steps}
}

// Execute runs the steps until one fails or reaches a terminal outcome.
func (mp *messagePipeline) Execute(ctx context.Context, state *MessageState) error {
	for i, step := range mp.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("message step %d failed: %w", i+1, err)
		}
		if state.Done {
			return nil
		}
	}
	return nil
}

// eventSteps processes a mailbox notification.
func (p *Pipeline) eventSteps() *messagePipeline {
	return newMessagePipeline(
		&FetchStep{Source: p.source},
		&ParseStep{},
		&RequireSenderStep{},
		&ResolveProcessorStep{Registry: p.registry},
		&EventCandidatesStep{Pipeline: p},
		&PersistStep{Pipeline: p},
	)
}

// accountSteps processes search results for one account, skipping
// messages sent before since.
func (p *Pipeline) accountSteps(acct domain.Account, since time.Time) *messagePipeline {
	return newMessagePipeline(
		&FetchStep{Source: p.source},
		&ParseStep{},
		&WindowStep{Pipeline: p, Since: since},
		&RequireSenderStep{},
		&ResolveProcessorStep{Registry: p.registry},
		&FixedCandidatesStep{Account: acct},
		&PersistStep{Pipeline: p},
	)
}

// processMessage runs the steps for one handle and reports its results.
func (p *Pipeline) processMessage(ctx context.Context, mp *messagePipeline, h mailbox.Handle) ([]Result, error) {
	state := &MessageState{Handle: h}
	err := mp.Execute(ctx, state)
	if err != nil {
		return []Result{{Handle: h, Sender: state.sender(), Outcome: Failed, Err: err}}, err
	}
	if len(state.Results) > 0 {
		return state.Results, nil
	}
	outcome := state.Outcome
	if outcome == "" {
		outcome = RejectedNoMatch
	}
	return []Result{{Handle: h, Sender: state.sender(), Outcome: outcome}}, nil
}

// messageTime returns when the message was sent, or now.
func (p *Pipeline) messageTime(m *mailbox.Message) time.Time {
	if m == nil || m.Date.IsZero() {
		return p.now()
	}
	return m.Date
}
