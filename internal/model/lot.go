package model

import (
	"time"
)

// LotStatus represents the processing state of a lot.
type LotStatus string

const (
	LotStatusNew         LotStatus = "new"
	LotStatusFilteredOut LotStatus = "filtered_out"
	LotStatusQualified   LotStatus = "qualified"
	LotStatusEnriched    LotStatus = "enriched"
	LotStatusVerified    LotStatus = "verified"
	LotStatusError       LotStatus = "error"
)

// AllLotStatuses returns every lot status in pipeline order.
func AllLotStatuses() []LotStatus {
	return []LotStatus{
		LotStatusNew,
		LotStatusFilteredOut,
		LotStatusQualified,
		LotStatusEnriched,
		LotStatusVerified,
		LotStatusError,
	}
}

// Status reasons recorded for non-filter outcomes.
const (
	ReasonParseFailed         = "parse_failed"
	ReasonFetchFailed         = "fetch_failed"
	ReasonEnrichmentExhausted = "enrichment_exhausted"
	ReasonVerificationFailed  = "verification_failed"
	ReasonPanic               = "unhandled_panic"
)

// LotReference identifies one lot discovered on a catalog page.
type LotReference struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`
}

// Lot is a parsed bankruptcy-sale record keyed by its catalog id.
type Lot struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`

	DebtorRawName        string   `json:"debtor_raw_name"`
	DebtorNormalizedName string   `json:"debtor_normalized_name,omitempty"`
	DebtorINN            string   `json:"debtor_inn,omitempty"`
	CaseNumber           string   `json:"case_number"`
	CaseNumbers          []string `json:"case_numbers,omitempty"`
	Individuals          bool     `json:"individuals,omitempty"`

	AnnouncementText     string     `json:"announcement_text,omitempty"`
	PublishDate          *time.Time `json:"publish_date,omitempty"`
	AuctionStartDate     *time.Time `json:"auction_start_date,omitempty"`
	AuctionEndDate       *time.Time `json:"auction_end_date,omitempty"`
	ApplicationStartDate *time.Time `json:"application_start_date,omitempty"`
	ApplicationEndDate   *time.Time `json:"application_end_date,omitempty"`
	StartPrice           float64    `json:"start_price,omitempty"`
	NominalDebt          float64    `json:"nominal_debt,omitempty"`
	PrevLotsCount        int        `json:"prev_lots_count"` // -1 when unknown

	Status               LotStatus `json:"status"`
	StatusReason         string    `json:"status_reason,omitempty"`
	FilterVariant        string    `json:"filter_variant,omitempty"`
	EnrichmentConfidence float64   `json:"enrichment_confidence,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DebtorName returns the normalized debtor name when known, else the raw one.
func (l Lot) DebtorName() string {
	if l.DebtorNormalizedName != "" {
		return l.DebtorNormalizedName
	}
	return l.DebtorRawName
}

// Finished reports whether the lot is skipped on resume under the named
// filter variant. A lot filtered out by another variant is not finished:
// its cached record is evaluated again.
func (l Lot) Finished(variant string) bool {
	switch l.Status {
	case LotStatusVerified, LotStatusError:
		return true
	case LotStatusFilteredOut:
		return l.FilterVariant == variant
	}
	return false
}

// CacheEntry is the persisted record for one lot.
type CacheEntry struct {
	Lot          Lot                 `json:"lot"`
	Verification *VerificationResult `json:"verification,omitempty"`
}
