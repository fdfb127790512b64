package rates

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// UnknownCountry labels results that fell back to the default rate.
	UnknownCountry = "Unknown"
	// NANPCountry is the rate-sheet row used for every number starting with 1.
	NANPCountry = "United States/Canada"
)

// DefaultRate is the conservative per-minute price quoted when nothing matches.
var DefaultRate = decimal.RequireFromString("0.50")

// Tier names the resolution step that produced a Result.
type Tier string

const (
	TierInvalid  Tier = "invalid"
	TierNANP     Tier = "nanp"
	TierPrefix   Tier = "prefix"
	TierContains Tier = "contains"
	TierFallback Tier = "fallback"
	TierDefault  Tier = "default"
)

// Result is the outcome of resolving one phone number. Rate is always usable.
type Result struct {
	Found            bool            `json:"found"`
	Rate             decimal.Decimal `json:"rate"`
	Country          string          `json:"country"`
	CountryCode      string          `json:"country_code,omitempty"`
	NormalizedNumber string          `json:"normalized_number,omitempty"`
	Tier             Tier            `json:"tier"`
}

// Resolver maps phone numbers to per-minute rates against a fixed Table.
// Quoted rates are always the record's MinRate.
type Resolver struct {
	table       *Table
	defaultRate decimal.Decimal
}

// NewResolver binds a resolver to t. A non-positive defaultRate selects DefaultRate.
func NewResolver(t *Table, defaultRate decimal.Decimal) *Resolver {
	if t == nil {
		t = NewTable(nil)
	}
	if !defaultRate.IsPositive() {
		defaultRate = DefaultRate
	}
	return &Resolver{table: t, defaultRate: defaultRate}
}

func (r *Resolver) Table() *Table { return r.table }

// Resolve applies, in order: input validation, the NANP rule, strict prefix match,
// loose substring match, a 3/2/1-digit prefix scan, and finally the default rate.
// It is a pure function of (number, table).
func (r *Resolver) Resolve(number string) Result {
	clean := cleanNumber(number)
	if len(clean) < 2 {
		return r.unresolved("", TierInvalid)
	}

	if strings.HasPrefix(clean, "1") {
		if rec, ok := r.table.Country(NANPCountry); ok {
			return Result{
				Found:            true,
				Rate:             rec.MinRate,
				Country:          rec.Country,
				CountryCode:      "+1",
				NormalizedNumber: "+1" + clean[1:],
				Tier:             TierNANP,
			}
		}
	}

	if rec, ok := r.longest(func(p string) bool { return strings.HasPrefix(clean, p) }); ok {
		return matched(rec, clean, TierPrefix)
	}
	if rec, ok := r.longest(func(p string) bool { return strings.Contains(clean, p) }); ok {
		return matched(rec, clean, TierContains)
	}

	for n := 3; n >= 1; n-- {
		if len(clean) < n {
			continue
		}
		candidate := clean[:n]
		for _, rec := range r.table.records {
			if strings.HasPrefix(rec.Prefix, candidate) {
				return matched(rec, clean, TierFallback)
			}
		}
	}

	return r.unresolved("+"+clean, TierDefault)
}

// GuessCountryCode returns the dialing code for number, e.g. "+44".
func (r *Resolver) GuessCountryCode(number string) (string, bool) {
	res := r.Resolve(number)
	return res.CountryCode, res.Found
}

// longest returns the record with the longest prefix satisfying match.
// Equal lengths keep the earliest record in load order.
func (r *Resolver) longest(match func(prefix string) bool) (Record, bool) {
	best := -1
	for i, rec := range r.table.records {
		if rec.Prefix == "" || !match(rec.Prefix) {
			continue
		}
		if best < 0 || len(rec.Prefix) > len(r.table.records[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return Record{}, false
	}
	return r.table.records[best], true
}

func (r *Resolver) unresolved(normalized string, tier Tier) Result {
	return Result{
		Rate:             r.defaultRate,
		Country:          UnknownCountry,
		NormalizedNumber: normalized,
		Tier:             tier,
	}
}

func matched(rec Record, clean string, tier Tier) Result {
	return Result{
		Found:            true,
		Rate:             rec.MinRate,
		Country:          rec.Country,
		CountryCode:      "+" + rec.Prefix,
		NormalizedNumber: "+" + clean,
		Tier:             tier,
	}
}
