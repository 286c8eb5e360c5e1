// Package filter decides which lots proceed to enrichment and
// verification. Rules are pure functions of lot fields; named variants
// group rules into competing policies selected at run time.
package filter

import (
	"time"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// Filter is a single accept/reject rule.
type Filter interface {
	Accepts(lot model.Lot) bool
	RuleName() string
}

// Variant is a named, ordered rule set. A lot passes only if every rule
// accepts it.
type Variant struct {
	Name        string
	Description string
	Rules       []Filter
}

// Evaluate returns whether the lot passes and, if not, the first rejecting
// rule's name.
func (v *Variant) Evaluate(lot model.Lot) (bool, string) {
	for _, r := range v.Rules {
		if !r.Accepts(lot) {
			return false, r.RuleName()
		}
	}
	return true, ""
}

// Accepts implements Filter for a whole variant.
func (v *Variant) Accepts(lot model.Lot) bool {
	ok, _ := v.Evaluate(lot)
	return ok
}

// RuleName implements Filter.
func (v *Variant) RuleName() string { return v.Name }

// MinDebt accepts lots whose nominal debt exceeds Amount.
type MinDebt struct {
	Amount float64
}

func (r MinDebt) Accepts(lot model.Lot) bool { return lot.NominalDebt > r.Amount }
func (r MinDebt) RuleName() string { return "min_debt" }

// AuctionEndWindow accepts lots whose auction ends between MinDays and
// MaxDays (inclusive) after the evaluation date. Lots without an auction
// end date are rejected unless AllowMissing is set.
type AuctionEndWindow struct {
	Now          time.Time
	MinDays      int
	MaxDays      int
	AllowMissing bool
}

func (r AuctionEndWindow) Accepts(lot model.Lot) bool {
	if lot.AuctionEndDate == nil {
		return r.AllowMissing
	}
	days := daysBetween(r.Now, *lot.AuctionEndDate)
	if r.MaxDays > 0 && days > r.MaxDays {
		return false
	}
	return days >= r.MinDays
}

func (r AuctionEndWindow) RuleName() string { return "auction_end_window" }

// AuctionEndAfter accepts lots whose auction ends strictly more than Days
// after the evaluation date, or has no end date.
type AuctionEndAfter struct {
	Now  time.Time
	Days int
}

func (r AuctionEndAfter) Accepts(lot model.Lot) bool {
	if lot.AuctionEndDate == nil {
		return true
	}
	return daysBetween(r.Now, *lot.AuctionEndDate) > r.Days
}

func (r AuctionEndAfter) RuleName() string { return "auction_end_after" }

// ApplicationOpen accepts lots whose application period ends tomorrow or
// later, or has no end date.
type ApplicationOpen struct {
	Now time.Time
}

func (r ApplicationOpen) Accepts(lot model.Lot) bool {
	if lot.ApplicationEndDate == nil {
		return true
	}
	return daysBetween(r.Now, *lot.ApplicationEndDate) >= 1
}

func (r ApplicationOpen) RuleName() string { return "application_open" }

// RequireINN accepts lots with a debtor INN.
type RequireINN struct{}

func (RequireINN) Accepts(lot model.Lot) bool { return lot.DebtorINN != "" }
func (RequireINN) RuleName() string { return "require_inn" }

// RequireDebtorName accepts lots with a debtor name.
type RequireDebtorName struct{}

func (RequireDebtorName) Accepts(lot model.Lot) bool { return lot.DebtorName() != "" }
func (RequireDebtorName) RuleName() string { return "require_debtor_name" }

// ExcludeIndividuals rejects lots whose debtor is a private person.
type ExcludeIndividuals struct{}

func (ExcludeIndividuals) Accepts(lot model.Lot) bool { return !lot.Individuals }
func (ExcludeIndividuals) RuleName() string { return "exclude_individuals" }

// RequireCaseNumber accepts lots with a case number.
type RequireCaseNumber struct{}

func (RequireCaseNumber) Accepts(lot model.Lot) bool { return lot.CaseNumber != "" }
func (RequireCaseNumber) RuleName() string { return "require_case_number" }

// daysBetween counts calendar days from now to t in now's location.
func daysBetween(now, t time.Time) int {
	loc := now.Location()
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	t = t.In(loc)
	b := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return int(b.Sub(a).Hours() / 24)
}
