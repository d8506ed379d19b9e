package gmp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ipowatchPage = `<html><body>
<table><tr><td>Menu</td></tr><tr><td>Home</td></tr></table>
<figure class="wp-block-table"><table>
<tr><th>Current IPOs</th><th>IPO GMP</th><th>IPO Price</th><th>Gain</th><th>Date</th><th>Type</th></tr>
<tr><td>Acme Industries IPO</td><td>₹22</td><td>₹110</td><td>20.00%</td><td>15-17 Oct</td><td>Mainboard</td></tr>
<tr><td>Beta Foods Limited</td><td>-₹5</td><td>₹250</td><td>-2%</td><td>20-22 Oct</td><td>Mainboard</td></tr>
<tr><td>Gamma Tech</td><td>-</td><td>₹90</td><td>-</td><td>21 Oct</td><td>SME</td></tr>
</table></figure></body></html>`

const chittorgarhPage = `<html><body><table>
<tr><th>IPO</th><th>Price Band</th><th>GMP</th><th>Est Listing</th><th>Gain</th></tr>
<tr><td>Acme Industries Ltd</td><td>₹100 to ₹110</td><td>₹24</td><td>₹134</td><td>21.8%</td></tr>
<tr><td>Short row</td><td>₹100</td></tr>
</table></body></html>`

func TestParseTableIPOWatch(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	quotes, err := ParseTable(strings.NewReader(ipowatchPage), DefaultSources()[0], now)
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	acme := quotes[0]
	assert.Equal(t, "ACMEINDUSTRI", acme.Symbol)
	assert.Equal(t, "Acme Industries", acme.CompanyName)
	assert.Equal(t, 22.0, *acme.Amount)
	assert.Equal(t, 110.0, *acme.IssuePrice)
	assert.Equal(t, 20.0, *acme.GainPercent)
	assert.Equal(t, "ipowatch", acme.Source)

	beta := quotes[1]
	assert.Equal(t, -5.0, *beta.Amount)
	assert.Equal(t, -2.0, *beta.GainPercent)
}

func TestParseTablePriceBand(t *testing.T) {
	quotes, err := ParseTable(strings.NewReader(chittorgarhPage), DefaultSources()[2], time.Now())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 110.0, *quotes[0].IssuePrice)
	assert.Equal(t, 24.0, *quotes[0].Amount)
	assert.Equal(t, 21.8, *quotes[0].GainPercent)
}

func TestParseTableMissingGainStaysNil(t *testing.T) {
	page := `<table><tr><th>Company</th><th>Price</th><th>GMP</th><th>Est</th><th>Gain</th></tr>
<tr><td>Delta Power</td><td>200</td><td>15</td><td>215</td><td>--</td></tr></table>`
	quotes, err := ParseTable(strings.NewReader(page), DefaultSources()[1], time.Now())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Nil(t, quotes[0].GainPercent)
}

func TestScraperFallsBackToBackupURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/primary", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/backup", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(ipowatchPage))
	})
	mux.HandleFunc("/chittorgarh", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chittorgarhPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	defaults := DefaultSources()
	ipowatch := defaults[0]
	ipowatch.URL, ipowatch.BackupURL = srv.URL+"/primary", srv.URL+"/backup"
	chittorgarh := defaults[2]
	chittorgarh.URL, chittorgarh.BackupURL = srv.URL+"/chittorgarh", ""

	s := NewScraper(logger.NewNop(), nil, WithSources([]SourceSpec{ipowatch, chittorgarh}), WithInterval(0))
	quotes, err := s.FetchPremiumQuotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, quotes, 3)
}

func TestScraperAllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := DefaultSources()[1]
	src.URL = srv.URL
	s := NewScraper(logger.NewNop(), nil, WithSources([]SourceSpec{src}), WithInterval(0))

	_, err := s.FetchPremiumQuotes(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrExhausted))
}

func TestFilterSources(t *testing.T) {
	got := FilterSources(DefaultSources(), []string{"chittorgarh"})
	require.Len(t, got, 1)
	assert.Equal(t, "chittorgarh", got[0].Name)
	assert.Len(t, FilterSources(DefaultSources(), nil), 3)
}
