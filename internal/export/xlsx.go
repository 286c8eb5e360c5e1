// Package export writes cached lots to spreadsheet reports.
package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// SheetName is the worksheet that holds the lot rows.
const SheetName = "Lots"

// Columns is the header row of the lot sheet.
var Columns = []string{
	"ID", "URL", "Debtor", "INN", "Case", "Status", "Reason", "Variant",
	"Nominal debt", "Start price", "Auction end",
	"Aggregate", "Confidence", "Verdict",
	"Basic", "Structural", "Financial", "Case analysis", "Notes",
}

// Options selects which cached lots are exported.
type Options struct {
	Statuses []model.LotStatus // empty exports every status
}

func (o Options) wants(s model.LotStatus) bool {
	if len(o.Statuses) == 0 {
		return true
	}
	for _, want := range o.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

// WriteXLSX writes one row per entry to a new workbook at path and
// returns the number of lot rows written.
func WriteXLSX(path string, entries []model.CacheEntry, opts Options) (int, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}

	n := 0
	for _, e := range entries {
		if !opts.wants(e.Lot.Status) {
			continue
		}
		writeLot(sheet.AddRow(), e)
		n++
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}
	return n, nil
}

func writeLot(row *xlsx.Row, e model.CacheEntry) {
	lot := e.Lot
	str := func(s string) { row.AddCell().SetString(s) }
	num := func(v float64, ok bool) {
		cell := row.AddCell()
		if ok {
			cell.SetFloat(v)
		}
	}

	str(lot.ID)
	str(lot.SourceURL)
	str(lot.DebtorName())
	str(lot.DebtorINN)
	str(lot.CaseNumber)
	str(string(lot.Status))
	str(lot.StatusReason)
	str(lot.FilterVariant)
	num(lot.NominalDebt, lot.NominalDebt > 0)
	num(lot.StartPrice, lot.StartPrice > 0)
	if lot.AuctionEndDate != nil {
		str(lot.AuctionEndDate.Format("2006-01-02"))
	} else {
		str("")
	}

	v := e.Verification
	if v != nil && v.AggregateScore != nil {
		num(*v.AggregateScore, true)
	} else {
		num(0, false)
	}
	if v != nil {
		num(v.Confidence, true)
		str(string(v.Verdict))
	} else {
		num(0, false)
		str("")
	}

	var notes []string
	for _, stage := range model.AllStages() {
		s, ok := v.Stage(stage)
		num(s.Score, ok)
		notes = append(notes, s.Notes...)
	}
	str(strings.Join(notes, "; "))
}
