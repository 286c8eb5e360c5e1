// Package parser turns raw lot-detail content into model.Lot records. Two
// formats are understood: the catalog's JSON trade payload and the HTML
// detail page.
package parser

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// ParseError is a structural failure for one lot. It never aborts a run.
type ParseError struct {
	LotID  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parser: lot %s: %s: %v", e.LotID, e.Reason, e.Err)
	}
	return fmt.Sprintf("parser: lot %s: %s", e.LotID, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// msk is the catalog's timezone. A fixed offset avoids a tzdata dependency.
var msk = time.FixedZone("MSK", 3*60*60)

// Parse builds a Lot from detail content. A lot without a case number or
// debtor name is a *ParseError.
func Parse(ref model.LotReference, content []byte, fetchedAt time.Time) (model.Lot, error) {
	lot := model.Lot{
		ID:            ref.ID,
		SourceURL:     ref.SourceURL,
		Status:        model.LotStatusNew,
		PrevLotsCount: -1,
		FetchedAt:     fetchedAt.UTC(),
		UpdatedAt:     fetchedAt.UTC(),
	}

	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return lot, &ParseError{LotID: ref.ID, Reason: "empty content"}
	}

	var err error
	if trimmed[0] == '{' {
		err = parseTrade(&lot, trimmed)
	} else {
		err = parseHTML(&lot, trimmed)
	}
	if err != nil {
		return lot, err
	}

	fillFromText(&lot)

	if lot.CaseNumber == "" {
		return lot, &ParseError{LotID: ref.ID, Reason: "no case number"}
	}
	if lot.DebtorRawName == "" && lot.DebtorINN == "" {
		return lot, &ParseError{LotID: ref.ID, Reason: "no debtor identity"}
	}
	return lot, nil
}
