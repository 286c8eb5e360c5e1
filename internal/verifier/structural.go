package verifier

import (
	"fmt"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// highVolumeCourts are arbitration courts of Moscow, Moscow region and
// St Petersburg.
var highVolumeCourts = map[string]bool{"40": true, "41": true, "56": true}

// structural scores case metadata and cached sibling lots. It makes no
// external calls.
func (v *Verifier) structural(sc *stageContext) model.StageScore {
	if sc.caseYear == 0 {
		return failed("case year unknown")
	}
	lot := sc.lot
	var notes []string

	age := sc.now.Year() - sc.caseYear
	var ageRisk float64
	switch {
	case age < 1:
		ageRisk = 0.2
	case age <= 3:
		ageRisk = 0.5
	default:
		ageRisk = 0.9
		notes = append(notes, fmt.Sprintf("case is %d years old", age))
	}

	if v.siblings != nil {
		sc.siblings = v.siblings.Siblings(lot)
	}
	prior := len(sc.siblings)
	if lot.PrevLotsCount > 0 {
		prior += lot.PrevLotsCount
	}
	if n := len(lot.CaseNumbers); n > 1 {
		prior += n - 1
	}
	var priorRisk float64
	switch {
	case prior == 0:
		priorRisk = 0.2
	case prior <= 2:
		priorRisk = 0.5
	default:
		priorRisk = 0.9
		notes = append(notes, fmt.Sprintf("%d prior proceedings or listings", prior))
	}

	courtRisk := 0.4
	if highVolumeCourts[courtCode(lot.CaseNumber)] {
		courtRisk = 0.6
		notes = append(notes, "high-volume court")
	}

	return model.StageScore{
		Score:   clamp01(0.4*ageRisk + 0.4*priorRisk + 0.2*courtRisk),
		Passed:  true,
		HasData: true,
		Notes:   notes,
	}
}
