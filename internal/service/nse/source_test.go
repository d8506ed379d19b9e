package nse

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const currentPayload = `[
  {"symbol":"acme","companyName":"Acme Industries Limited","series":"EQ","issueStartDate":"15-Oct-2026",
   "issueEndDate":"17-Oct-2026","issuePrice":"Rs.100 to Rs.110","noOfSharesOffered":"1,20,00,000",
   "noOfsharesBid":"18,60,00,000","noOfTime":"15.50","status":"Active"},
  {"symbol":"","companyName":"Nameless"},
  {"symbol":"BETA","companyName":"Beta Foods Ltd","issuePrice":"Rs.250","noOfTime":null},
  "not-an-object"
]`

const subscriptionPayload = `{
  "updateTime":"17-Oct-2026 17:00:00",
  "dataList":[
    {"srNo":"Sr.No.","category":"Category","noOfShareOffered":"No. of shares offered","noOfSharesBid":"No. of shares bid","noOfTotalMeant":"No. of times of total meant for the category"},
    {"srNo":"1","category":"Qualified Institutional Buyers(QIBs)","noOfShareOffered":"24,00,000","noOfSharesBid":"2,90,40,000","noOfTotalMeant":"12.10"},
    {"srNo":"2","category":"Non Institutional Investors","noOfShareOffered":"18,00,000","noOfSharesBid":"1,47,60,000","noOfTotalMeant":"8.20"},
    {"srNo":"2.1","category":"Non Institutional Investors(Bid amount of more than Ten Lakh Rupees)","noOfTotalMeant":"9.90"},
    {"srNo":"3","category":"Retail Individual Investors(RIIs)","noOfShareOffered":"42,00,000","noOfSharesBid":"1,34,40,000","noOfTotalMeant":"3.20"},
    {"srNo":"4","category":"Employees","noOfTotalMeant":"1.5"},
    {"srNo":"5","category":"Total","noOfShareOffered":"84,00,000","noOfSharesBid":"13,02,00,000","noOfTotalMeant":"15.50"}
  ]}`

type stubRequester struct {
	payloads map[string]string
	err      error
	params   map[string]url.Values
}

func (s *stubRequester) Request(_ context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if s.params == nil {
		s.params = make(map[string]url.Values)
	}
	s.params[endpoint] = params
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.payloads[endpoint]), nil
}

func TestParseListingsSkipsBadRecords(t *testing.T) {
	got, skipped, err := ParseListings([]byte(currentPayload), models.CategoryCurrent)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, got, 2)

	acme := got[0]
	assert.Equal(t, "ACME", acme.Symbol)
	assert.Equal(t, 100.0, acme.PriceLow)
	assert.Equal(t, 110.0, acme.PriceHigh)
	assert.Equal(t, 110.0, acme.IssuePrice())
	assert.Equal(t, int64(12000000), acme.SharesOffered)
	assert.Equal(t, 15.5, acme.SubscriptionTimes)
	assert.Equal(t, models.CategoryCurrent, acme.Category)

	beta := got[1]
	assert.Equal(t, 250.0, beta.IssuePrice())
	assert.Equal(t, "EQ", beta.Series)
}

func TestParseListingsUnwrapsDataObject(t *testing.T) {
	got, _, err := ParseListings([]byte(`{"data":[{"symbol":"ACME","companyName":"Acme"}]}`), models.CategoryUpcoming)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategoryUpcoming, got[0].Category)
}

func TestParseListingsMalformed(t *testing.T) {
	for _, payload := range []string{`{"message":"blocked"}`, `"text"`, ``, `[{`} {
		_, _, err := ParseListings([]byte(payload), models.CategoryCurrent)
		require.Error(t, err, payload)
		assert.True(t, errors.Is(err, errs.ErrMalformed), payload)
	}
}

func TestParseSubscription(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	snap, err := ParseSubscription([]byte(subscriptionPayload), "acme", now)
	require.NoError(t, err)

	assert.Equal(t, "ACME", snap.Symbol)
	assert.Equal(t, "2026-10-17", snap.Date)
	assert.Equal(t, 12.1, snap.Institutional)
	assert.Equal(t, 8.2, snap.NonInstitutional, "first NII row wins over sub-buckets")
	assert.Equal(t, 3.2, snap.Retail)
	assert.Equal(t, 1.5, snap.Employee)
	assert.Equal(t, 15.5, snap.Total)
	assert.Equal(t, "Highly Oversubscribed", snap.Status)
	assert.Len(t, snap.Categories, 5)
	assert.True(t, snap.HasData())
}

func TestParseSubscriptionDerivesTotal(t *testing.T) {
	payload := `{"dataList":[
	  {"category":"Qualified Institutional Buyers(QIBs)","noOfShareOffered":"100","noOfSharesBid":"300","noOfTotalMeant":"3"},
	  {"category":"Retail Individual Investors(RIIs)","noOfShareOffered":"100","noOfSharesBid":"100","noOfTotalMeant":"1"}]}`
	snap, err := ParseSubscription([]byte(payload), "X", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.Total)
	assert.Equal(t, "Oversubscribed", snap.Status)
}

func TestFetchListingsUsesEndpoints(t *testing.T) {
	req := &stubRequester{payloads: map[string]string{
		EndpointCurrent:  currentPayload,
		EndpointUpcoming: `[]`,
	}}
	src := NewSource(req, logger.NewNop())

	current, err := src.FetchListings(context.Background(), models.CategoryCurrent, "2026-10-17")
	require.NoError(t, err)
	assert.Len(t, current, 2)

	upcoming, err := src.FetchListings(context.Background(), models.CategoryUpcoming, "2026-10-17")
	require.NoError(t, err)
	assert.Empty(t, upcoming)
	assert.Equal(t, "ipo", req.params[EndpointUpcoming].Get("category"))
}

func TestFetchPropagatesSessionErrors(t *testing.T) {
	req := &stubRequester{err: &errs.Error{Kind: errs.KindExhausted, Op: "session.request"}}
	src := NewSource(req, logger.NewNop())

	_, err := src.FetchSubscription(context.Background(), "ACME")
	assert.True(t, errors.Is(err, errs.ErrExhausted))
}

func TestMarketStatus(t *testing.T) {
	req := &stubRequester{payloads: map[string]string{
		EndpointMarketStatus: `{"marketState":[{"market":"Capital Market","marketStatus":"Open","tradeDate":"17-Oct-2026","index":"NIFTY 50","last":"25,100.5","percentChange":0.42}]}`,
	}}
	src := NewSource(req, logger.NewNop())

	got, err := src.MarketStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Open", got[0].Status)
	assert.Equal(t, 25100.5, got[0].Last)
	assert.Equal(t, 0.42, got[0].PercentDiff)
}
