package model

import (
	"sort"
	"time"
)

// Balance-sheet and income-statement line codes used by the financial stage.
const (
	LineFixedAssets        = "1150"
	LineLTInvestments      = "1170"
	LineCurrentAssets      = "1200"
	LineInventories        = "1210"
	LineReceivables        = "1230"
	LineCash               = "1250"
	LineEquity             = "1300"
	LineCurrentLiabilities = "1500"
	LinePayables           = "1520"
	LineBalanceTotal       = "1600"
	LineRevenue            = "2110"
)

// Financials holds the financial-data collaborator's view of one debtor.
type Financials struct {
	INN              string                     `json:"inn"`
	CompanyStatus    string                     `json:"company_status,omitempty"`
	RegistrationDate *time.Time                 `json:"registration_date,omitempty"`
	LastReportDate   *time.Time                 `json:"last_report_date,omitempty"`
	Lines            map[string]map[int]float64 `json:"lines"`
}

// Value returns the value of line for year.
func (f *Financials) Value(line string, year int) (float64, bool) {
	if f == nil || f.Lines == nil {
		return 0, false
	}
	v, ok := f.Lines[line][year]
	return v, ok
}

// Years returns every year with at least one line value, newest first.
func (f *Financials) Years() []int {
	if f == nil {
		return nil
	}
	seen := make(map[int]bool)
	for _, byYear := range f.Lines {
		for y := range byYear {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// LatestYearWith returns the newest year in which all lines have a value.
func (f *Financials) LatestYearWith(lines ...string) (int, bool) {
	for _, y := range f.Years() {
		ok := true
		for _, l := range lines {
			if _, has := f.Value(l, y); !has {
				ok = false
				break
			}
		}
		if ok {
			return y, true
		}
	}
	return 0, false
}

// LatestPairWith returns the newest consecutive (prev, curr) years where all
// lines have values in both years.
func (f *Financials) LatestPairWith(lines ...string) (prev, curr int, ok bool) {
	for _, y := range f.Years() {
		complete := true
		for _, l := range lines {
			_, a := f.Value(l, y)
			_, b := f.Value(l, y-1)
			if !a || !b {
				complete = false
				break
			}
		}
		if complete {
			return y - 1, y, true
		}
	}
	return 0, 0, false
}

// CaseIndicators holds legal-proceeding signals for a debtor or case.
type CaseIndicators struct {
	ClaimCount        int        `json:"claim_count"`
	OutstandingAmount float64    `json:"outstanding_amount"`
	CaseStatus        string     `json:"case_status,omitempty"`
	CaseSum           float64    `json:"case_sum,omitempty"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
}
