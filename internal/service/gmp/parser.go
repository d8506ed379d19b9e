package gmp

import (
	"io"
	"strings"
	"time"

	"IPOPulse/internal/domain/models"
	"IPOPulse/pkg/util"

	"github.com/PuerkitoBio/goquery"
)

// ParseTable extracts premium quotes from every matching table of a page.
// Rows without a company name or premium amount are skipped; the last row
// seen for a symbol wins.
func ParseTable(r io.Reader, spec SourceSpec, now time.Time) ([]models.PremiumQuote, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	tables := doc.Find("figure.wp-block-table table")
	if tables.Length() == 0 {
		tables = doc.Find("table")
	}

	bySymbol := make(map[string]int)
	var quotes []models.PremiumQuote
	tables.Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		if len(spec.HeaderHints) > 0 && !headerMatches(rows.First(), spec.HeaderHints) {
			return
		}
		rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := cellTexts(row)
			q, ok := parseRow(cells, spec, now)
			if !ok {
				return
			}
			if idx, dup := bySymbol[q.Symbol]; dup {
				quotes[idx] = q
				return
			}
			bySymbol[q.Symbol] = len(quotes)
			quotes = append(quotes, q)
		})
	})
	return quotes, nil
}

func headerMatches(header *goquery.Selection, hints []string) bool {
	text := strings.ToLower(strings.Join(cellTexts(header), " "))
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func cellTexts(row *goquery.Selection) []string {
	cells := row.Find("td, th")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.Join(strings.Fields(c.Text()), " "))
	})
	return out
}

func parseRow(cells []string, spec SourceSpec, now time.Time) (models.PremiumQuote, bool) {
	l := spec.Layout
	if len(cells) < l.MinCells || l.Company < 0 || l.Company >= len(cells) {
		return models.PremiumQuote{}, false
	}

	company := cleanCompany(cells[l.Company])
	symbol := util.ExtractSymbol(company)
	if symbol == "" {
		return models.PremiumQuote{}, false
	}

	amount, ok := numberAt(cells, l.Amount)
	if !ok {
		return models.PremiumQuote{}, false
	}

	q := models.PremiumQuote{
		Source:      spec.Name,
		Symbol:      symbol,
		CompanyName: company,
		Amount:      models.Float(amount),
		CapturedAt:  now.UTC(),
	}
	if l.PriceBand {
		if l.IssuePrice >= 0 && l.IssuePrice < len(cells) {
			if _, high, ok := util.ParsePriceRange(cells[l.IssuePrice]); ok && high > 0 {
				q.IssuePrice = models.Float(high)
			}
		}
	} else if price, ok := numberAt(cells, l.IssuePrice); ok && price > 0 {
		q.IssuePrice = models.Float(price)
	}
	if gain, ok := numberAt(cells, l.Gain); ok {
		q.GainPercent = models.Float(gain)
	}
	return q, true
}

func numberAt(cells []string, idx int) (float64, bool) {
	if idx < 0 || idx >= len(cells) {
		return 0, false
	}
	return util.ExtractNumber(cells[idx])
}

var companyNoise = []string{" IPO", " NSE SME", " BSE SME", " SME"}

func cleanCompany(name string) string {
	name = strings.TrimSpace(name)
	upper := strings.ToUpper(name)
	for _, n := range companyNoise {
		if strings.HasSuffix(upper, n) {
			name = strings.TrimSpace(name[:len(name)-len(n)])
			upper = strings.ToUpper(name)
		}
	}
	return name
}
