package verifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

// financial scores the debtor's balance sheet. Missing data, including a
// source error or timeout, does not fail the stage: it passes with the
// configured lowest-confidence score.
func (v *Verifier) financial(ctx context.Context, sc *stageContext) model.StageScore {
	noData := func(note string) model.StageScore {
		return model.StageScore{
			Score:   v.cfg.LowestConfidenceScore,
			Passed:  true,
			HasData: false,
			Notes:   []string{note},
		}
	}

	inn := sc.lot.DebtorINN
	if inn == "" {
		return noData("no debtor inn")
	}
	if v.finance == nil {
		return noData("financial source not configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()
	to := sc.now.Year()
	f, err := v.finance.GetFinancials(callCtx, inn, to-v.years, to)
	if err != nil {
		if errors.Is(err, finance.ErrNotFound) {
			return noData("no financial records")
		}
		// An unreachable source is missing data, not a zero-risk result.
		zap.L().Warn("verifier: financial data unavailable", zap.String("lot_id", sc.lot.ID), zap.Error(err))
		return noData("financial source error: " + err.Error())
	}
	sc.financials = f
	if len(f.Years()) == 0 && f.CompanyStatus == "" {
		return noData("financial record empty")
	}

	var notes []string
	m := evaluateMarkers(f)
	for _, name := range m.triggered {
		notes = append(notes, "marker "+name)
	}

	health := 0
	if f.CompanyStatus != "" {
		pts, note := companyStatusPoints(f.CompanyStatus, sc.now)
		health += pts
		if note != "" {
			notes = append(notes, note)
		}
	}
	if f.RegistrationDate != nil {
		pts := registrationPoints(*f.RegistrationDate, sc.now)
		if pts < 0 && fullYears(*f.RegistrationDate, sc.now) < 1 {
			notes = append(notes, "registered less than a year ago")
		}
		health += pts
	}
	if f.LastReportDate != nil {
		health += reportFreshnessPoints(*f.LastReportDate, sc.now)
	}

	markerRisk := clamp01(float64(m.total) / 10)
	score := 0.6*markerRisk + 0.4*healthRisk(health)
	if m.autopass != "" {
		notes = append(notes, "autopass: "+m.autopass)
		score = math.Max(score, 0.9)
	}

	return model.StageScore{
		Score:   clamp01(score),
		Passed:  true,
		HasData: true,
		Notes:   notes,
	}
}

// healthRisk maps company health points onto a risk score using the
// verification bands of the structural review.
func healthRisk(points int) float64 {
	switch {
	case points >= 11:
		return 0.1
	case points >= -37:
		return 0.4
	case points >= -92:
		return 0.7
	default:
		return 1.0
	}
}

type markerResult struct {
	total     int
	strong    int
	medium    int
	triggered []string
	autopass  string
}

// evaluateMarkers applies the balance-sheet solvency markers. Each marker
// scores 0, 2 (medium) or 3 (strong).
func evaluateMarkers(f *model.Financials) markerResult {
	markers := []struct {
		name string
		fn   func(*model.Financials) int
	}{
		{"negative_equity", markerNegativeEquity},
		{"low_current_liquidity", markerCurrentLiquidity},
		{"low_quick_liquidity", markerQuickLiquidity},
		{"low_absolute_liquidity", markerAbsoluteLiquidity},
		{"fixed_assets_drop", markerFixedAssetsDrop},
		{"lt_investments_shift", markerLTInvestmentsShift},
		{"frozen_receivables", markerFrozenReceivables},
		{"payables_up_revenue_down", markerPayablesUpRevenueDown},
	}

	var r markerResult
	for _, m := range markers {
		pts := m.fn(f)
		if pts == 0 {
			continue
		}
		r.total += pts
		r.triggered = append(r.triggered, m.name)
		switch pts {
		case 3:
			r.strong++
		case 2:
			r.medium++
		}
	}

	switch {
	case r.strong >= 2:
		r.autopass = "two_strongs"
	case r.strong >= 1 && r.medium >= 2:
		r.autopass = "one_strong_two_mediums"
	case r.total >= 10:
		r.autopass = "total_ge_10"
	}
	return r
}

func ratio(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func pctChange(prev, curr float64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return (curr - prev) / math.Abs(prev), true
}

func markerNegativeEquity(f *model.Financials) int {
	if prev, curr, ok := f.LatestPairWith(model.LineEquity); ok {
		p, _ := f.Value(model.LineEquity, prev)
		c, _ := f.Value(model.LineEquity, curr)
		switch {
		case c < 0 && p < 0:
			return 3
		case c < 0:
			return 2
		}
		return 0
	}
	if y, ok := f.LatestYearWith(model.LineEquity); ok {
		if v, _ := f.Value(model.LineEquity, y); v < 0 {
			return 2
		}
	}
	return 0
}

func markerCurrentLiquidity(f *model.Financials) int {
	y, ok := f.LatestYearWith(model.LineCurrentAssets, model.LineCurrentLiabilities)
	if !ok {
		return 0
	}
	a, _ := f.Value(model.LineCurrentAssets, y)
	l, _ := f.Value(model.LineCurrentLiabilities, y)
	if r, ok := ratio(a, l); ok && r < 1.0 {
		return 2
	}
	return 0
}

func markerQuickLiquidity(f *model.Financials) int {
	y, ok := f.LatestYearWith(model.LineCurrentAssets, model.LineInventories, model.LineCurrentLiabilities)
	if !ok {
		return 0
	}
	a, _ := f.Value(model.LineCurrentAssets, y)
	inv, _ := f.Value(model.LineInventories, y)
	l, _ := f.Value(model.LineCurrentLiabilities, y)
	if r, ok := ratio(a-inv, l); ok && r < 0.6 {
		return 2
	}
	return 0
}

func markerAbsoluteLiquidity(f *model.Financials) int {
	y, ok := f.LatestYearWith(model.LineCash, model.LineCurrentLiabilities)
	if !ok {
		return 0
	}
	cash, _ := f.Value(model.LineCash, y)
	l, _ := f.Value(model.LineCurrentLiabilities, y)
	if r, ok := ratio(cash, l); ok && r < 0.1 {
		return 2
	}
	return 0
}

func markerFixedAssetsDrop(f *model.Financials) int {
	prev, curr, ok := f.LatestPairWith(model.LineFixedAssets)
	if !ok {
		return 0
	}
	p, _ := f.Value(model.LineFixedAssets, prev)
	c, _ := f.Value(model.LineFixedAssets, curr)
	if ch, ok := pctChange(p, c); ok && ch <= -0.25 {
		return 2
	}
	return 0
}

func markerLTInvestmentsShift(f *model.Financials) int {
	prev, curr, ok := f.LatestPairWith(model.LineLTInvestments, model.LineBalanceTotal)
	if !ok {
		return 0
	}
	pi, _ := f.Value(model.LineLTInvestments, prev)
	pt, _ := f.Value(model.LineBalanceTotal, prev)
	ci, _ := f.Value(model.LineLTInvestments, curr)
	ct, _ := f.Value(model.LineBalanceTotal, curr)
	sharePrev, ok1 := ratio(pi, pt)
	shareCurr, ok2 := ratio(ci, ct)
	if !ok1 || !ok2 {
		return 0
	}
	if shareCurr >= 0.20 && shareCurr-sharePrev >= 0.10 {
		return 2
	}
	return 0
}

func markerFrozenReceivables(f *model.Financials) int {
	prev, curr, ok := f.LatestPairWith(model.LineReceivables, model.LineRevenue)
	if !ok {
		return 0
	}
	pr, _ := f.Value(model.LineReceivables, prev)
	prev2110, _ := f.Value(model.LineRevenue, prev)
	cr, _ := f.Value(model.LineReceivables, curr)
	curr2110, _ := f.Value(model.LineRevenue, curr)
	rPrev, ok1 := ratio(pr, prev2110)
	rCurr, ok2 := ratio(cr, curr2110)
	if !ok1 || !ok2 {
		return 0
	}
	if rCurr > 1 && rCurr > rPrev {
		return 2
	}
	return 0
}

func markerPayablesUpRevenueDown(f *model.Financials) int {
	prev, curr, ok := f.LatestPairWith(model.LinePayables, model.LineRevenue)
	if !ok {
		return 0
	}
	pp, _ := f.Value(model.LinePayables, prev)
	cp, _ := f.Value(model.LinePayables, curr)
	prevRev, _ := f.Value(model.LineRevenue, prev)
	currRev, _ := f.Value(model.LineRevenue, curr)
	chAP, ok1 := pctChange(pp, cp)
	chRev, ok2 := pctChange(prevRev, currRev)
	if !ok1 || !ok2 {
		return 0
	}
	if chAP >= 0.5 && chRev <= -0.3 {
		return 2
	}
	return 0
}

var statusDateRx = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})\s*$`)

// companyStatusPoints scores the registry status of the debtor.
func companyStatusPoints(status string, now time.Time) (int, string) {
	s := strings.ToLower(strings.TrimSpace(status))
	liquidatedLongAgo := func() bool {
		m := statusDateRx.FindStringSubmatch(s)
		if m == nil {
			return false
		}
		d, err := time.Parse("02.01.2006", m[1])
		if err != nil {
			return false
		}
		return now.Sub(d).Hours()/24/365.25 >= 3
	}
	const subsidiary = "recovery only through subsidiary liability of controlling persons"

	switch {
	case strings.HasPrefix(s, "исключен") && strings.Contains(s, "конкурс"):
		return -100, "struck off after bankruptcy proceedings"
	case strings.HasPrefix(s, "исключен"):
		if liquidatedLongAgo() {
			return -100, subsidiary
		}
		return 2, subsidiary
	case strings.Contains(s, "банкрот") && strings.Contains(s, "конкурс"):
		return -20, "in bankruptcy proceedings"
	case strings.Contains(s, "наблюдение"):
		return -10, "under supervision"
	case strings.HasPrefix(s, "сведения недостоверны"):
		return 3, ""
	case strings.Contains(s, "предстоящее исключение") || strings.Contains(s, "реорганизац"):
		return 2, ""
	case strings.HasPrefix(s, "действ"):
		return 6, ""
	}
	return 0, fmt.Sprintf("unknown company status %q", status)
}

func fullYears(from, now time.Time) int {
	years := now.Year() - from.Year()
	if now.Month() < from.Month() || (now.Month() == from.Month() && now.Day() < from.Day()) {
		years--
	}
	return years
}

// registrationPoints scores company age.
func registrationPoints(registered, now time.Time) int {
	switch years := fullYears(registered, now); {
	case years < 1:
		return -4
	case years < 3:
		return -2
	default:
		return 2
	}
}

// reportFreshnessPoints compares the last report year with the latest
// year for which reports are due (filed by April 1 of the next year).
func reportFreshnessPoints(lastReport, now time.Time) int {
	ideal := now.Year() - 2
	if !now.Before(time.Date(now.Year(), time.April, 1, 0, 0, 0, 0, now.Location())) {
		ideal = now.Year() - 1
	}
	switch lag := ideal - lastReport.Year(); {
	case lag <= 0:
		return 5
	case lag == 1:
		return 2
	default:
		return -3
	}
}
