package dataflows

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const form4XML = `<?xml version="1.0"?>
<ownershipDocument>
  <issuer><issuerTradingSymbol>ABCD</issuerTradingSymbol></issuer>
  <nonDerivativeTable>
    <nonDerivativeTransaction>
      <transactionDate><value>2024-02-20</value></transactionDate>
      <transactionCoding><transactionCode>P</transactionCode></transactionCoding>
      <transactionAmounts>
        <transactionShares><value>25000</value></transactionShares>
        <transactionAcquiredDisposedCode><value>A</value></transactionAcquiredDisposedCode>
      </transactionAmounts>
    </nonDerivativeTransaction>
    <nonDerivativeTransaction>
      <transactionDate><value>2024-02-21</value></transactionDate>
      <transactionCoding><transactionCode>S</transactionCode></transactionCoding>
      <transactionAmounts>
        <transactionShares><value>1000</value></transactionShares>
        <transactionAcquiredDisposedCode><value>D</value></transactionAcquiredDisposedCode>
      </transactionAmounts>
    </nonDerivativeTransaction>
  </nonDerivativeTable>
</ownershipDocument>`

func newEdgarServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gem-test admin@example.com", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/files/company_tickers.json":
			w.Write([]byte(`{"0":{"cik_str":1234567,"ticker":"ABCD","title":"Abcd Inc"}}`))
		case "/submissions/CIK0001234567.json":
			w.Write([]byte(`{"cik":"1234567","name":"Abcd Inc","filings":{"recent":{
				"accessionNumber":["0001234567-24-000010","0001234567-24-000011","0001234567-23-000001"],
				"filingDate":["2024-02-22","2024-02-26","2023-01-05"],
				"form":["4","8-K","4"],
				"primaryDocument":["xslF345X05/wf-form4.xml","abcd-8k.htm","old.xml"]}}}`))
		case "/Archives/edgar/data/1234567/000123456724000010/wf-form4.xml":
			w.Write([]byte(form4XML))
		case "/Archives/edgar/data/1234567/000123456724000011/abcd-8k.htm":
			w.Write([]byte(`<html><head><style>p{}</style></head><body><p>Abcd announces   FDA
				<b>approval</b></p><script>var x=1;</script></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestEdgarRequiresUserAgent(t *testing.T) {
	_, err := NewEdgarClient(ClientOptions{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEdgarFilingsAndForm4(t *testing.T) {
	srv := newEdgarServer(t)
	defer srv.Close()

	ec, err := NewEdgarClient(ClientOptions{BaseURL: srv.URL, UserAgent: "gem-test admin@example.com", Retry: fastRetry()})
	require.NoError(t, err)
	ctx := context.Background()

	cik, err := ec.CIK(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, 1234567, cik)

	_, err = ec.CIK(ctx, "ZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	filings, err := ec.Filings(ctx, cik, []string{"4"}, since, until)
	require.NoError(t, err)
	require.Len(t, filings, 1)
	assert.Equal(t, "0001234567-24-000010", filings[0].AccessionNumber)

	txns, err := ec.InsiderTransactions(ctx, cik, filings[0])
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "P", txns[0].Code)
	assert.True(t, txns[0].Acquired)
	assert.Equal(t, 25000.0, txns[0].Shares)
	assert.False(t, txns[1].Acquired)

	eightK, err := ec.Filings(ctx, cik, []string{"8-k"}, since, until)
	require.NoError(t, err)
	require.Len(t, eightK, 1)
	text, err := ec.FilingText(ctx, cik, eightK[0])
	require.NoError(t, err)
	assert.Equal(t, "Abcd announces FDA approval", text)
}
