package parser

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/bankrot-cli/internal/model"
)

type tradeResponse struct {
	Status bool `json:"status"`
	Result struct {
		Trade *trade `json:"trade"`
	} `json:"result"`
}

type trade struct {
	Debtor struct {
		Name           string     `json:"name"`
		INN            flexString `json:"inn"`
		ClosedLotCount *int       `json:"closedLotCount"`
	} `json:"debtor"`
	Text   string          `json:"text"`
	TStart string          `json:"tstart"`
	TEnd   string          `json:"tend"`
	ZStart string          `json:"zstart"`
	ZEnd   string          `json:"zend"`
	Price  json.RawMessage `json:"price"`
}

// parseTrade reads the {"status":true,"result":{"trade":{...}}} payload.
// The trade's debtor is the bankrupt; it seeds the lot debtor only until
// the announcement text names the claim debtor.
func parseTrade(lot *model.Lot, content []byte) error {
	var resp tradeResponse
	if err := json.Unmarshal(content, &resp); err != nil {
		return &ParseError{LotID: lot.ID, Reason: "invalid trade json", Err: err}
	}
	if !resp.Status || resp.Result.Trade == nil {
		return &ParseError{LotID: lot.ID, Reason: "trade payload unavailable"}
	}
	t := resp.Result.Trade

	lot.AnnouncementText = cleanSpaces(t.Text)
	lot.DebtorRawName = cleanSpaces(t.Debtor.Name)
	lot.DebtorINN = model.NormalizeINN(string(t.Debtor.INN))
	if t.Debtor.ClosedLotCount != nil {
		lot.PrevLotsCount = *t.Debtor.ClosedLotCount
	}
	lot.PublishDate = apiTime(t.TStart)
	lot.AuctionStartDate = apiTime(t.TStart)
	lot.AuctionEndDate = apiTime(t.TEnd)
	lot.ApplicationStartDate = apiTime(t.ZStart)
	lot.ApplicationEndDate = apiTime(t.ZEnd)
	lot.StartPrice = apiPrice(t.Price)
	return nil
}

// apiTime parses "YYYY-MM-DD HH:MM:SS" (or a bare date) in Moscow time.
func apiTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, msk); err == nil {
			return &t
		}
	}
	return nil
}

// apiPrice accepts a JSON number or a string like "95 000,00".
func apiPrice(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseAmount(s)
	}
	return 0
}

func parseAmount(s string) float64 {
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
