package httpapi

import (
	"net/http"
	"strings"

	"zkypee/internal/rates"

	"github.com/gin-gonic/gin"
)

// LookupRate resolves ?number= to a per-minute rate.
func (h Handlers) LookupRate(c *gin.Context) {
	if h.Rates == nil {
		notConfigured(c, "rates")
		return
	}
	number := strings.TrimSpace(c.Query("number"))
	if number == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number required"})
		return
	}
	res := h.Rates.Resolve(c.Request.Context(), number)
	if res.Tier == rates.TierInvalid {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number has no digits"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type continentRates struct {
	Continent string         `json:"continent"`
	Rates     []rates.Record `json:"rates"`
}

// ListRates returns the whole table grouped by continent, in sheet order.
func (h Handlers) ListRates(c *gin.Context) {
	if h.Rates == nil {
		notConfigured(c, "rates")
		return
	}
	t := h.Rates.Table()
	grouped := t.ByContinent()
	out := make([]continentRates, 0, len(grouped))
	for _, name := range t.Continents() {
		out = append(out, continentRates{Continent: name, Rates: grouped[name]})
	}
	c.JSON(http.StatusOK, gin.H{"version": t.Version(), "continents": out})
}

func (h Handlers) SearchRates(c *gin.Context) {
	if h.Rates == nil {
		notConfigured(c, "rates")
		return
	}
	found := h.Rates.Table().Search(c.Query("q"))
	if found == nil {
		found = []rates.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"results": found})
}

// GuessCountryCode returns the dialing prefix a partially typed number most likely belongs to.
func (h Handlers) GuessCountryCode(c *gin.Context) {
	if h.Rates == nil {
		notConfigured(c, "rates")
		return
	}
	code, ok := h.Rates.GuessCountryCode(c.Request.Context(), c.Query("number"))
	c.JSON(http.StatusOK, gin.H{"found": ok, "country_code": code})
}
