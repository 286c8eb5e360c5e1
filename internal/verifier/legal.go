package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

// legal scores court-case indicators: claim terms, confirmation of the
// debt amount by a judgment, case status and competing claims.
func (v *Verifier) legal(ctx context.Context, sc *stageContext) model.StageScore {
	if v.finance == nil {
		return failed("case source not configured")
	}
	lot := sc.lot

	callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()
	ci, err := v.finance.GetCaseIndicators(callCtx, lot.DebtorINN, lot.CaseNumber)
	if err != nil {
		if errors.Is(err, finance.ErrNotFound) {
			return failed("no case indicators")
		}
		zap.L().Warn("verifier: case data unavailable", zap.String("lot_id", lot.ID), zap.Error(err))
		return failed("case source error: " + err.Error())
	}

	var notes []string
	add := func(pts int, note string) int {
		if note != "" {
			notes = append(notes, note)
		}
		return pts
	}

	status := ""
	if sc.financials != nil {
		status = sc.financials.CompanyStatus
	}
	caseAge := float64(sc.now.Year() - sc.caseYear)
	sinceDecision := caseAge
	if ci.DecidedAt != nil {
		sinceDecision = yearsBetween(*ci.DecidedAt, sc.now)
	}

	points := 0
	points += add(claimTermPoints(caseAge, sinceDecision, status))
	points += add(debtConfirmationPoints(ci.CaseSum, lot.NominalDebt))
	points += add(caseStatusPoints(ci.CaseStatus))
	points += add(claimCountPoints(ci.ClaimCount, ci.OutstandingAmount))

	return model.StageScore{
		Score:   legalRisk(points),
		Passed:  true,
		HasData: true,
		Notes:   append(notes, fmt.Sprintf("legal points %d", points)),
	}
}

// legalRisk maps legal points onto a risk score using the legal
// verification bands.
func legalRisk(points int) float64 {
	switch {
	case points >= 5:
		return 0.1
	case points >= -42:
		return 0.4
	case points >= -89:
		return 0.7
	default:
		return 1.0
	}
}

func yearsBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / 365.25
}

// claimTermPoints checks the three-year limitation period.
func claimTermPoints(caseAge, sinceDecision float64, companyStatus string) (int, string) {
	s := strings.ToLower(companyStatus)
	active := strings.Contains(s, "действ")
	switch {
	case caseAge < 3:
		return 2, ""
	case active && sinceDecision < 3:
		return 1, ""
	case active && sinceDecision > 3.33:
		return -100, "limitation period for the claim has passed"
	case active:
		return -5, "limitation period passed unless enforcement ended for lack of debtor assets"
	case strings.Contains(s, "исключен") && strings.Contains(s, "конкурс"):
		return -100, "company liquidated through bankruptcy"
	case strings.Contains(s, "исключен"):
		return 1, "recovery only through subsidiary liability of controlling persons"
	}
	return 0, ""
}

// debtConfirmationPoints compares the lot's nominal debt with the amount
// awarded by the court.
func debtConfirmationPoints(caseSum, nominal float64) (int, string) {
	if caseSum <= 0 {
		return -50, "debt amount not confirmed by a court decision"
	}
	if nominal <= 0 {
		return 2, "debt amount confirmed by a court decision"
	}
	r := nominal / caseSum
	switch {
	case r >= 0.7 && r <= 1.3:
		return 2, "debt amount close to the court decision"
	case r > 1.3:
		return -1, "debt amount more than 30% above the court decision"
	default:
		return -1, "debt amount more than 30% below the court decision"
	}
}

// caseStatusPoints maps the court case status.
func caseStatusPoints(status string) (int, string) {
	s := strings.ToLower(status)
	switch {
	case strings.Contains(s, "отказ от иска"):
		return -100, "creditor withdrew the claim"
	case strings.Contains(s, "без рассмотрения"):
		return 2, "claim left without consideration, can be refiled"
	case strings.Contains(s, "в силе") || strings.Contains(s, "вступило в силу"):
		return 5, ""
	case s == "":
		return 0, "case status unknown"
	}
	return 0, fmt.Sprintf("unknown case status %q", status)
}

// claimCountPoints penalizes many competing claims against the debtor.
func claimCountPoints(claims int, outstanding float64) (int, string) {
	switch {
	case claims > 10:
		return -3, fmt.Sprintf("%d claims against the debtor, %.0f outstanding", claims, outstanding)
	case claims > 3:
		return -1, fmt.Sprintf("%d claims against the debtor", claims)
	}
	return 0, ""
}
