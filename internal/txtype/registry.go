// Package txtype maps institution-specific transaction type codes to the
// canonical groups that detection rules are scoped by.
package txtype

import (
	"strings"
	"sync"
)

// Canonical type groups. A rule scoped to a group applies only to type
// codes registered under it; GroupAll matches every code.
const (
	GroupAll        = "ALL-ALL"
	GroupCashIn     = "CCE-INN"
	GroupCashOut    = "CCE-OUT"
	GroupTransfer   = "TRF-ALL"
	GroupPayment    = "PMT-ALL"
	GroupFee        = "FEE-ALL"
	GroupAdjustment = "ADJ-ALL"
)

// Registry holds the type-code-to-group mapping. Lookups are hot path
// (every rule applicability check), so the map is guarded by an RWMutex
// and codes are normalized once on registration.
type Registry struct {
	mu     sync.RWMutex
	groups map[string][]string // group -> codes
	byCode map[string]string   // normalized code -> group
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string][]string),
		byCode: make(map[string]string),
	}
}

// NewDefaultRegistry returns a registry preloaded with the standard
// core banking code lists.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterGroup(GroupCashIn, []string{
		"DEPOSIT", "CASH DEP", "CHEQUE DEP", "DIRECT CR", "CSH+ DEP", "CSH+ CHQ",
	})
	r.RegisterGroup(GroupCashOut, []string{
		"WITHDRAWAL", "WITHDRAW", "CASH WDL", "ATM WDL",
	})
	r.RegisterGroup(GroupTransfer, []string{
		"TRANSFER", "WIRE", "SWIFT", "ACH",
	})
	r.RegisterGroup(GroupPayment, []string{
		"BILL PMT", "PAYMENT", "PMT", "DIRECT DEBIT",
	})
	r.RegisterGroup(GroupFee, []string{
		"FEE", "SRV CHARGE", "CHARGE",
	})
	r.RegisterGroup(GroupAdjustment, []string{
		"REV", "ADJ", "CORRECTION",
	})
	return r
}

// Normalize canonicalizes a raw type code for lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RegisterGroup registers the codes under a group, replacing any prior
// registration of the same group. A code may belong to one group only;
// re-registering a code moves it.
func (r *Registry) RegisterGroup(group string, codes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, old := range r.groups[group] {
		delete(r.byCode, old)
	}
	normalized := make([]string, 0, len(codes))
	for _, c := range codes {
		n := Normalize(c)
		if n == "" {
			continue
		}
		if prev, ok := r.byCode[n]; ok && prev != group {
			r.removeFromGroup(prev, n)
		}
		r.byCode[n] = group
		normalized = append(normalized, n)
	}
	r.groups[group] = normalized
}

// RegisterCode adds a single code to a group.
func (r *Registry) RegisterCode(group, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := Normalize(code)
	if n == "" {
		return
	}
	if prev, ok := r.byCode[n]; ok {
		if prev == group {
			return
		}
		r.removeFromGroup(prev, n)
	}
	r.byCode[n] = group
	r.groups[group] = append(r.groups[group], n)
}

// UnregisterCode removes a code from whatever group holds it.
func (r *Registry) UnregisterCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := Normalize(code)
	group, ok := r.byCode[n]
	if !ok {
		return
	}
	delete(r.byCode, n)
	r.removeFromGroup(group, n)
}

// caller holds r.mu
func (r *Registry) removeFromGroup(group, code string) {
	codes := r.groups[group]
	for i, c := range codes {
		if c == code {
			r.groups[group] = append(codes[:i], codes[i+1:]...)
			return
		}
	}
}

// GroupOf returns the group a code belongs to, or "" if unregistered.
// Unregistered codes match only ALL-ALL scoped rules.
func (r *Registry) GroupOf(code string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byCode[Normalize(code)]
}

// Matches reports whether a type code falls under the given group.
func (r *Registry) Matches(group, code string) bool {
	if group == GroupAll || group == "" {
		return true
	}
	return r.GroupOf(code) == group
}

// Codes returns the registered codes for a group.
func (r *Registry) Codes(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.groups[group]))
	copy(out, r.groups[group])
	return out
}

// Groups returns all registered group names.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.groups))
	for g := range r.groups {
		out = append(out, g)
	}
	return out
}

// Direction reports the cash flow direction of a code's group, or ""
// when the group implies neither.
func (r *Registry) Direction(code string) string {
	switch r.GroupOf(code) {
	case GroupCashIn:
		return "IN"
	case GroupCashOut, GroupPayment, GroupFee:
		return "OUT"
	}
	return ""
}
