package processor

import (
	"net/mail"
	"strings"
)

// Registry resolves alert senders to processors. It is assembled once at
// startup.
type Registry struct {
	ordered []Processor
	byEmail map[string]Processor
}

// NewRegistry registers processors in order. Earlier registrations win
// substring matches.
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{byEmail: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		email := strings.ToLower(p.Institution().AlertEmail)
		if _, dup := r.byEmail[email]; dup {
			continue
		}
		r.byEmail[email] = p
		r.ordered = append(r.ordered, p)
	}
	return r
}

// Default registers every known institution.
func Default() *Registry {
	return NewRegistry(
		NewInstitutionProcessor(Axis, AxisRules()),
		NewInstitutionProcessor(PNB, PNBRules()),
		NewInstitutionProcessor(SBI, SBIRules()),
		NewInstitutionProcessor(LICHFL, LICHFLRules()),
	)
}

// Address extracts the bare lower-case address from a sender such as
// "Axis Bank <alerts@axisbank.com>".
func Address(sender string) string {
	sender = strings.TrimSpace(sender)
	if a, err := mail.ParseAddress(sender); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(sender)
}

// Resolve finds the processor for a sender: an exact address match first,
// then a substring match.
func (r *Registry) Resolve(sender string) (Processor, bool) {
	addr := Address(sender)
	if addr == "" {
		return nil, false
	}
	if p, ok := r.byEmail[addr]; ok {
		return p, true
	}
	lower := strings.ToLower(sender)
	for _, p := range r.ordered {
		if strings.Contains(lower, strings.ToLower(p.Institution().AlertEmail)) {
			return p, true
		}
	}
	return nil, false
}

// Institutions lists the registered institutions in registration order.
func (r *Registry) Institutions() []Institution {
	out := make([]Institution, len(r.ordered))
	for i, p := range r.ordered {
		out[i] = p.Institution()
	}
	return out
}
