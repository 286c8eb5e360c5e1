package verifier

import (
	"regexp"
	"strconv"
	"time"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// caseNumberRx matches a well-formed arbitration case number and captures
// the court code and the year.
var caseNumberRx = regexp.MustCompile(`^[АA](\d{1,3})-\d+/(\d{2}|\d{4})$`)

var earliestPlausible = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// basicValidation is the gate: a well-formed case number, a debtor
// identity, and plausible dates.
func basicValidation(sc *stageContext) model.StageScore {
	lot := sc.lot
	checks, ok := 0, 0
	var notes []string

	checks++
	if year, valid := caseYear(lot.CaseNumber); valid {
		sc.caseYear = year
		ok++
	} else if lot.CaseNumber == "" {
		notes = append(notes, "case number missing")
	} else {
		notes = append(notes, "case number malformed: "+lot.CaseNumber)
	}

	checks++
	if lot.DebtorName() != "" || lot.DebtorINN != "" {
		ok++
	} else {
		notes = append(notes, "debtor identity missing")
	}

	checks++
	if note := implausibleDate(lot, sc.now); note == "" {
		ok++
	} else {
		notes = append(notes, note)
	}

	if lot.DebtorINN != "" && !model.ValidINNChecksum(lot.DebtorINN) {
		notes = append(notes, "inn control digits do not match")
	}

	return model.StageScore{
		Score:   float64(ok) / float64(checks),
		Passed:  ok == checks,
		HasData: true,
		Notes:   notes,
	}
}

// caseYear parses the four-digit year from a case number.
func caseYear(caseNumber string) (int, bool) {
	m := caseNumberRx.FindStringSubmatch(caseNumber)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	if y < 100 {
		y += 2000
	}
	return y, true
}

// courtCode returns the arbitration court code of a case number.
func courtCode(caseNumber string) string {
	m := caseNumberRx.FindStringSubmatch(caseNumber)
	if m == nil {
		return ""
	}
	return m[1]
}

func implausibleDate(lot model.Lot, now time.Time) string {
	latest := now.AddDate(5, 0, 0)
	dates := []struct {
		name string
		t    *time.Time
	}{
		{"publish date", lot.PublishDate},
		{"auction start", lot.AuctionStartDate},
		{"auction end", lot.AuctionEndDate},
		{"application start", lot.ApplicationStartDate},
		{"application end", lot.ApplicationEndDate},
	}
	for _, d := range dates {
		if d.t == nil {
			continue
		}
		if d.t.Before(earliestPlausible) || d.t.After(latest) {
			return d.name + " implausible"
		}
	}
	if lot.AuctionStartDate != nil && lot.AuctionEndDate != nil && lot.AuctionEndDate.Before(*lot.AuctionStartDate) {
		return "auction ends before it starts"
	}
	if y, ok := caseYear(lot.CaseNumber); ok && (y < 1990 || y > now.Year()) {
		return "case year implausible"
	}
	return ""
}
