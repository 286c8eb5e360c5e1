package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/bankrot-cli/internal/model"
)

var (
	// Arbitration case numbers: "А40-113129/2022", "A41-1/25".
	caseRx = regexp.MustCompile(`[АA]\d{1,3}-\d+/\d{2,4}`)

	// Organisation names with a legal form and quoted name, e.g. ООО «Маренго».
	orgRx = regexp.MustCompile(`(?:ООО|АО|ПАО|ЗАО|ОАО|НАО|ИП|АКБ|ФГУП|МУП)\s*[«"“][^»"”]{1,120}[»"”]`)

	// "Требование к ООО ..." / "задолженность ООО ..." introduces the claim debtor.
	claimDebtorRx = regexp.MustCompile(`(?i)(?:требовани[яей]\s+к|задолженност[иь]|дебиторск\S+\s+задолженност[иь])\s+`)

	// Money amounts followed by a ruble marker.
	amountRx = regexp.MustCompile(`(\d{1,3}(?:[ \x{00a0}]\d{3})+|\d+)(?:[.,](\d{1,2}))?\s*(?:руб|₽|р\.)`)

	individualRx = regexp.MustCompile(`(?i)физ(?:\.|ическ\S*)\s*лиц|гражданин[аи]?\s|(?:^|\s)ИП\s`)

	spaceRx = regexp.MustCompile(`\s+`)
)

// fillFromText derives case numbers, the claim debtor, INN and debt size
// from the announcement text, keeping values the structured source already
// supplied when the text has none.
func fillFromText(lot *model.Lot) {
	text := lot.AnnouncementText

	seen := make(map[string]bool)
	for _, c := range caseRx.FindAllString(text, -1) {
		c = NormalizeCaseNumber(c)
		if !seen[c] {
			seen[c] = true
			lot.CaseNumbers = append(lot.CaseNumbers, c)
		}
	}
	if len(lot.CaseNumbers) > 0 {
		lot.CaseNumber = lot.CaseNumbers[0]
	}

	if name, end := claimDebtor(text); name != "" {
		inn := innAfter(text, end)
		switch {
		case name != lot.DebtorRawName:
			// The bankrupt's INN does not identify a different claim
			// debtor; empty leaves it to enrichment.
			lot.DebtorINN = inn
		case inn != "":
			lot.DebtorINN = inn
		}
		lot.DebtorRawName = name
	}

	lot.NominalDebt = max(lot.NominalDebt, LargestAmount(text))
	lot.Individuals = individualRx.MatchString(text)
}

// innWindow is how many bytes after an organisation name its INN may start.
const innWindow = 120

// claimDebtor returns the organisation named right after a claim phrase,
// else the first organisation in the text, with the offset where the name
// ends.
func claimDebtor(text string) (string, int) {
	if loc := claimDebtorRx.FindStringIndex(text); loc != nil {
		tail := text[loc[1]:]
		if m := orgRx.FindStringIndex(tail); m != nil && m[0] < 40 {
			return cleanSpaces(tail[m[0]:m[1]]), loc[1] + m[1]
		}
	}
	if m := orgRx.FindStringIndex(text); m != nil {
		return cleanSpaces(text[m[0]:m[1]]), m[1]
	}
	return "", -1
}

// innAfter returns a labeled INN following the name that ends at end. The
// search stops at the next organisation name or after innWindow bytes.
func innAfter(text string, end int) string {
	if end < 0 || end > len(text) {
		return ""
	}
	tail := text[end:]
	if m := orgRx.FindStringIndex(tail); m != nil {
		tail = tail[:m[0]]
	}
	if len(tail) > innWindow {
		tail = tail[:innWindow]
	}
	return model.ExtractINN(tail)
}

// NormalizeCaseNumber uses the Cyrillic court letter and trims spaces.
func NormalizeCaseNumber(c string) string {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "A") {
		c = "А" + c[1:]
	}
	return c
}

// LargestAmount returns the largest ruble amount mentioned in text.
func LargestAmount(text string) float64 {
	var best float64
	for _, m := range amountRx.FindAllStringSubmatch(text, -1) {
		whole := strings.NewReplacer(" ", "", "\u00a0", "").Replace(m[1])
		v, err := strconv.ParseFloat(whole, 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			frac, _ := strconv.ParseFloat("0."+m[2], 64)
			v += frac
		}
		best = max(best, v)
	}
	return best
}

func cleanSpaces(s string) string {
	return strings.TrimSpace(spaceRx.ReplaceAllString(s, " "))
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
