package filter

import (
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Built-in variant names.
const (
	VariantDebtWindow  = "debt_window"
	VariantDeadline    = "deadline"
	VariantHasIdentity = "has_identity"
)

// Registry holds the named variants available for a run. Every variant is
// built against the same evaluation date.
type Registry struct {
	now      time.Time
	variants map[string]*Variant
}

// NewRegistry returns a registry with the built-in variants evaluated as
// of now.
func NewRegistry(now time.Time) *Registry {
	r := &Registry{now: now, variants: make(map[string]*Variant)}
	r.Register(&Variant{
		Name:        VariantDebtWindow,
		Description: "nominal debt over 2,000,000 and auction ending in 21 to 90 days",
		Rules: []Filter{
			MinDebt{Amount: 2_000_000},
			AuctionEndWindow{Now: now, MinDays: 21, MaxDays: 90},
		},
	})
	r.Register(&Variant{
		Name:        VariantDeadline,
		Description: "applications still open tomorrow and auction more than 14 days out",
		Rules: []Filter{
			ApplicationOpen{Now: now},
			AuctionEndAfter{Now: now, Days: 14},
		},
	})
	r.Register(&Variant{
		Name:        VariantHasIdentity,
		Description: "any lot with a named non-individual debtor",
		Rules: []Filter{
			RequireDebtorName{},
			ExcludeIndividuals{},
		},
	})
	return r
}

// Now returns the registry's evaluation date.
func (r *Registry) Now() time.Time { return r.now }

// Register adds or replaces a variant.
func (r *Registry) Register(v *Variant) {
	r.variants[v.Name] = v
}

// Get returns the named variant.
func (r *Registry) Get(name string) (*Variant, error) {
	v, ok := r.variants[name]
	if !ok {
		return nil, eris.Errorf("filter: unknown variant %q", name)
	}
	return v, nil
}

// Variants returns every variant ordered by name.
func (r *Registry) Variants() []*Variant {
	out := make([]*Variant, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// variantsFile is the YAML layout of a variants definition file:
//
//	variants:
//	  - name: big_debt
//	    description: ...
//	    rules:
//	      - rule: min_debt
//	        amount: 5000000
//	      - rule: auction_end_window
//	        min_days: 21
//	        max_days: 60
type variantsFile struct {
	Variants []variantSpec `yaml:"variants"`
}

type variantSpec struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Rules       []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Rule         string  `yaml:"rule"`
	Amount       float64 `yaml:"amount"`
	MinDays      int     `yaml:"min_days"`
	MaxDays      int     `yaml:"max_days"`
	Days         int     `yaml:"days"`
	AllowMissing bool    `yaml:"allow_missing"`
}

// LoadFile registers the variants defined in a YAML file, replacing
// built-ins of the same name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "filter: read variants file")
	}
	return r.Load(data)
}

// Load registers variants from YAML content.
func (r *Registry) Load(data []byte) error {
	var file variantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return eris.Wrap(err, "filter: parse variants")
	}
	for _, spec := range file.Variants {
		if spec.Name == "" {
			return eris.New("filter: variant without name")
		}
		if len(spec.Rules) == 0 {
			return eris.Errorf("filter: variant %q has no rules", spec.Name)
		}
		v := &Variant{Name: spec.Name, Description: spec.Description}
		for i, rs := range spec.Rules {
			rule, err := r.buildRule(rs)
			if err != nil {
				return eris.Wrapf(err, "filter: variant %q rule %d", spec.Name, i+1)
			}
			v.Rules = append(v.Rules, rule)
		}
		r.Register(v)
	}
	return nil
}

func (r *Registry) buildRule(rs ruleSpec) (Filter, error) {
	switch rs.Rule {
	case "min_debt":
		return MinDebt{Amount: rs.Amount}, nil
	case "auction_end_window":
		if rs.MaxDays > 0 && rs.MaxDays < rs.MinDays {
			return nil, eris.Errorf("max_days %d < min_days %d", rs.MaxDays, rs.MinDays)
		}
		return AuctionEndWindow{Now: r.now, MinDays: rs.MinDays, MaxDays: rs.MaxDays, AllowMissing: rs.AllowMissing}, nil
	case "auction_end_after":
		return AuctionEndAfter{Now: r.now, Days: rs.Days}, nil
	case "application_open":
		return ApplicationOpen{Now: r.now}, nil
	case "require_inn":
		return RequireINN{}, nil
	case "require_debtor_name":
		return RequireDebtorName{}, nil
	case "exclude_individuals":
		return ExcludeIndividuals{}, nil
	case "require_case_number":
		return RequireCaseNumber{}, nil
	default:
		return nil, eris.Errorf("unknown rule %q", rs.Rule)
	}
}
