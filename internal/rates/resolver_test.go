package rates

import (
	"context"
	"testing"

	"zkypee/internal/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_UnitedKingdomExample(t *testing.T) {
	tbl := NewTable([]Record{{Continent: "Europe", Country: "United Kingdom", RawCountryCode: "+44", Prefix: "44", MinRate: d("0.05"), MaxRate: d("0.09")}})
	res := NewResolver(tbl, decimal.Zero).Resolve("+442012345678")

	assert.True(t, res.Found)
	assert.True(t, res.Rate.Equal(d("0.05")), "quotes the minimum rate")
	assert.Equal(t, "United Kingdom", res.Country)
	assert.Equal(t, "+44", res.CountryCode)
	assert.Equal(t, "+442012345678", res.NormalizedNumber)
	assert.Equal(t, TierPrefix, res.Tier)
}

func TestResolve_InvalidInputUsesDefault(t *testing.T) {
	r := NewResolver(loadFixture(t), decimal.Zero)
	for _, in := range []string{"", "   ", "+-()", "+", "4", " (4) "} {
		res := r.Resolve(in)
		assert.False(t, res.Found, "input %q", in)
		assert.True(t, res.Rate.Equal(DefaultRate), "input %q", in)
		assert.Equal(t, UnknownCountry, res.Country)
		assert.Equal(t, TierInvalid, res.Tier)
	}
}

func TestResolve_NANPPrecedence(t *testing.T) {
	r := NewResolver(loadFixture(t), decimal.Zero)

	res := r.Resolve("12125551234")
	assert.Equal(t, "United States/Canada", res.Country)
	assert.True(t, res.Rate.Equal(d("0.01")))
	assert.Equal(t, "+12125551234", res.NormalizedNumber)
	assert.Equal(t, "+1", res.CountryCode)

	// Bahamas numbers are NANP numbers too.
	res = r.Resolve("+1 (242) 555-0100")
	assert.Equal(t, "United States/Canada", res.Country)
	assert.Equal(t, TierNANP, res.Tier)
}

func TestResolve_NANPFallsThroughWithoutRecord(t *testing.T) {
	tbl := NewTable([]Record{{Country: "Somewhere", Prefix: "12", MinRate: d("0.3"), MaxRate: d("0.3")}})
	res := NewResolver(tbl, decimal.Zero).Resolve("1234")
	assert.Equal(t, "Somewhere", res.Country)
	assert.Equal(t, TierPrefix, res.Tier)
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	tbl := NewTable([]Record{
		{Country: "Russia", Prefix: "7", MinRate: d("0.1"), MaxRate: d("0.1")},
		{Country: "Kazakhstan", Prefix: "76", MinRate: d("0.2"), MaxRate: d("0.2")},
	})
	r := NewResolver(tbl, decimal.Zero)
	assert.Equal(t, "Kazakhstan", r.Resolve("+76 123 4567").Country)
	assert.Equal(t, "Russia", r.Resolve("+74951234567").Country)
}

func TestResolve_TiesBrokenByLoadOrder(t *testing.T) {
	tbl := loadFixture(t)
	// Bahamas (1-242) and Congo (+242) share prefix 242; Bahamas loads first.
	res := NewResolver(tbl, decimal.Zero).Resolve("2425551234")
	assert.Equal(t, "Bahamas", res.Country)
	assert.True(t, res.Rate.Equal(d("0.15")))
}

func TestResolve_ContainsThenFallbackThenDefault(t *testing.T) {
	tbl := NewTable([]Record{
		{Country: "Alpha", Prefix: "44", MinRate: d("0.05"), MaxRate: d("0.05")},
		{Country: "Beta", Prefix: "8812", MinRate: d("0.07"), MaxRate: d("0.07")},
	})
	r := NewResolver(tbl, d("0.75"))

	res := r.Resolve("0044123")
	assert.Equal(t, "Alpha", res.Country)
	assert.Equal(t, TierContains, res.Tier)

	res = r.Resolve("881")
	assert.Equal(t, "Beta", res.Country)
	assert.Equal(t, TierFallback, res.Tier)

	res = r.Resolve("99")
	assert.False(t, res.Found)
	assert.True(t, res.Rate.Equal(d("0.75")), "configured default applies")
	assert.Equal(t, UnknownCountry, res.Country)
	assert.Equal(t, TierDefault, res.Tier)
}

func TestResolve_MultiplePlusSigns(t *testing.T) {
	r := NewResolver(loadFixture(t), decimal.Zero)
	res := r.Resolve("+44+20+1234")
	assert.Equal(t, "United Kingdom", res.Country)
	assert.Equal(t, "+44201234", res.NormalizedNumber)
}

func TestResolve_EmptyTable(t *testing.T) {
	res := NewResolver(nil, decimal.Zero).Resolve("+442012345678")
	assert.False(t, res.Found)
	assert.True(t, res.Rate.Equal(DefaultRate))
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(loadFixture(t), decimal.Zero)
	for _, in := range []string{"12125551234", "+442012345678", "2425551234", "99", ""} {
		assert.Equal(t, r.Resolve(in), r.Resolve(in), "input %q", in)
	}
}

func TestGuessCountryCode(t *testing.T) {
	r := NewResolver(loadFixture(t), decimal.Zero)
	code, ok := r.GuessCountryCode("+44 20 7946 0958")
	assert.True(t, ok)
	assert.Equal(t, "+44", code)

	_, ok = r.GuessCountryCode("x")
	assert.False(t, ok)
}

func TestService_CachesPerTableVersion(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	svc := NewService(loadFixture(t), decimal.Zero, WithCache(c, 0))

	first := svc.Resolve(ctx, "+442012345678")
	require.Equal(t, 1, c.Len())
	second := svc.Resolve(ctx, "+44 20 1234 5678")
	assert.True(t, first.Rate.Equal(second.Rate))
	assert.Equal(t, first.Country, second.Country)
	require.Equal(t, 1, c.Len(), "same cleaned number shares a cache entry")

	svc.Swap(NewTable([]Record{{Country: "United Kingdom", Prefix: "44", MinRate: d("0.02"), MaxRate: d("0.02")}}))
	third := svc.Resolve(ctx, "+442012345678")
	assert.True(t, third.Rate.Equal(d("0.02")), "a new table version bypasses stale entries")
	assert.Equal(t, 2, c.Len())
}

func TestService_ReloadKeepsTableOnFailure(t *testing.T) {
	svc := NewService(loadFixture(t), decimal.Zero)
	before := svc.Table().Version()

	err := svc.Reload(t.TempDir()+"/missing.csv", nil)
	assert.Error(t, err)
	assert.Equal(t, before, svc.Table().Version())
}
