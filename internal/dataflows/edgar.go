package dataflows

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/GemScreener/models"
)

const (
	SECBaseURL     = "https://www.sec.gov"
	SECDataBaseURL = "https://data.sec.gov"
)

// EdgarClient reads company filings from SEC EDGAR.
type EdgarClient struct {
	client  *resty.Client
	opts    ClientOptions
	wwwURL  string
	dataURL string

	mu   sync.Mutex
	ciks map[string]int
}

// NewEdgarClient creates an EDGAR client. SEC rejects requests without a
// descriptive User-Agent, so one is required. A BaseURL replaces both SEC hosts.
func NewEdgarClient(opts ClientOptions) (*EdgarClient, error) {
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, newSourceError("edgar", "", ErrUnauthorized, 0, errors.New("SEC_USER_AGENT not configured"))
	}

	wwwURL, dataURL := SECBaseURL, SECDataBaseURL
	if opts.BaseURL != "" {
		wwwURL, dataURL = opts.BaseURL, opts.BaseURL
	}

	client := resty.New()
	client.SetTimeout(opts.timeout())
	client.SetHeader("User-Agent", opts.UserAgent)

	return &EdgarClient{
		client:  client,
		opts:    opts,
		wwwURL:  strings.TrimRight(wwwURL, "/"),
		dataURL: strings.TrimRight(dataURL, "/"),
	}, nil
}

func (ec *EdgarClient) Name() string { return "edgar" }

// CIK resolves a ticker to its central index key.
func (ec *EdgarClient) CIK(ctx context.Context, symbol string) (int, error) {
	symbol, err := models.NormalizeSymbol(symbol)
	if err != nil {
		return 0, err
	}
	if err := ec.loadTickers(ctx); err != nil {
		return 0, err
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	cik, ok := ec.ciks[symbol]
	if !ok {
		return 0, newSourceError(ec.Name(), symbol, ErrNotFound, 0, errors.New("no CIK for ticker"))
	}
	return cik, nil
}

func (ec *EdgarClient) loadTickers(ctx context.Context) error {
	ec.mu.Lock()
	loaded := ec.ciks != nil
	ec.mu.Unlock()
	if loaded {
		return nil
	}

	var raw map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if !ec.opts.Cache.Get("edgar", "tickers", "company_tickers", &raw) {
		body, err := ec.fetch(ctx, "", ec.wwwURL+"/files/company_tickers.json")
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return newSourceError(ec.Name(), "", ErrMalformed, 0, err)
		}
		ec.opts.Cache.Set("edgar", "tickers", "company_tickers", raw)
	}

	ciks := make(map[string]int, len(raw))
	for _, entry := range raw {
		ciks[strings.ToUpper(entry.Ticker)] = entry.CIK
	}

	ec.mu.Lock()
	ec.ciks = ciks
	ec.mu.Unlock()
	return nil
}

type submissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// Filings lists recent filings of the given forms filed within [since, until].
// An empty forms list returns every form.
func (ec *EdgarClient) Filings(ctx context.Context, cik int, forms []string, since, until time.Time) ([]Filing, error) {
	body, err := ec.fetch(ctx, "", fmt.Sprintf("%s/submissions/CIK%010d.json", ec.dataURL, cik))
	if err != nil {
		return nil, err
	}

	var sub submissions
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, newSourceError(ec.Name(), "", ErrMalformed, 0, err)
	}

	want := make(map[string]bool, len(forms))
	for _, f := range forms {
		want[strings.ToUpper(f)] = true
	}

	recent := sub.Filings.Recent
	n := len(recent.AccessionNumber)
	if len(recent.FilingDate) < n || len(recent.Form) < n || len(recent.PrimaryDocument) < n {
		return nil, newSourceError(ec.Name(), "", ErrMalformed, 0, errors.New("ragged filings arrays"))
	}

	lo, hi := models.Day(since), models.Day(until)
	var filings []Filing
	for i := 0; i < n; i++ {
		if len(want) > 0 && !want[strings.ToUpper(recent.Form[i])] {
			continue
		}
		filed, err := models.ParseDate(recent.FilingDate[i])
		if err != nil {
			continue
		}
		if filed.Before(lo) || filed.After(hi) {
			continue
		}
		filings = append(filings, Filing{
			Form:            recent.Form[i],
			FilingDate:      filed,
			AccessionNumber: recent.AccessionNumber[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		})
	}
	return filings, nil
}

// documentURL points at a filing's primary document. Form 4 listings name the
// XSL-rendered copy; the raw XML sits one directory up.
func (ec *EdgarClient) documentURL(cik int, f Filing, raw bool) string {
	doc := f.PrimaryDocument
	if raw && strings.HasPrefix(doc, "xsl") {
		if idx := strings.Index(doc, "/"); idx >= 0 {
			doc = doc[idx+1:]
		}
	}
	accession := strings.ReplaceAll(f.AccessionNumber, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%d/%s/%s", ec.wwwURL, cik, accession, doc)
}

type form4Value struct {
	Value string `xml:"value"`
}

type form4Document struct {
	XMLName      xml.Name `xml:"ownershipDocument"`
	Transactions []struct {
		Date   form4Value `xml:"transactionDate"`
		Coding struct {
			Code string `xml:"transactionCode"`
		} `xml:"transactionCoding"`
		Amounts struct {
			Shares           form4Value `xml:"transactionShares"`
			AcquiredDisposed form4Value `xml:"transactionAcquiredDisposedCode"`
		} `xml:"transactionAmounts"`
	} `xml:"nonDerivativeTable>nonDerivativeTransaction"`
}

// InsiderTransactions parses the non-derivative transactions of a Form 4.
func (ec *EdgarClient) InsiderTransactions(ctx context.Context, cik int, f Filing) ([]InsiderTransaction, error) {
	var cached []InsiderTransaction
	if ec.opts.Cache.Get("edgar", "form4", f.AccessionNumber, &cached) {
		return cached, nil
	}

	body, err := ec.fetch(ctx, "", ec.documentURL(cik, f, true))
	if err != nil {
		return nil, err
	}
	txns, err := ParseForm4(body)
	if err != nil {
		return nil, newSourceError(ec.Name(), "", ErrMalformed, 0, err)
	}

	ec.opts.Cache.Set("edgar", "form4", f.AccessionNumber, txns)
	return txns, nil
}

// ParseForm4 decodes a Form 4 ownership document.
func ParseForm4(data []byte) ([]InsiderTransaction, error) {
	var doc form4Document
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, err
	}

	txns := make([]InsiderTransaction, 0, len(doc.Transactions))
	for _, t := range doc.Transactions {
		shares, err := strconv.ParseFloat(strings.TrimSpace(t.Amounts.Shares.Value), 64)
		if err != nil {
			continue
		}
		date, _ := models.ParseDate(strings.TrimSpace(t.Date.Value))
		txns = append(txns, InsiderTransaction{
			Date:     date,
			Code:     strings.TrimSpace(t.Coding.Code),
			Shares:   shares,
			Acquired: strings.EqualFold(strings.TrimSpace(t.Amounts.AcquiredDisposed.Value), "A"),
		})
	}
	return txns, nil
}

// FilingText returns the visible text of a filing's primary document.
func (ec *EdgarClient) FilingText(ctx context.Context, cik int, f Filing) (string, error) {
	body, err := ec.fetch(ctx, "", ec.documentURL(cik, f, false))
	if err != nil {
		return "", err
	}
	return HTMLText(body)
}

// HTMLText strips markup, scripts and styles, collapsing whitespace.
func HTMLText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

func (ec *EdgarClient) fetch(ctx context.Context, symbol, url string) ([]byte, error) {
	var body []byte
	err := WithRetry(ctx, ec.opts.Retry, func() error {
		if err := ec.opts.wait(ctx); err != nil {
			return err
		}

		resp, err := ec.client.R().SetContext(ctx).Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return newSourceError(ec.Name(), symbol, ErrNetwork, 0, err)
		}
		if kind := statusKind(resp.StatusCode()); kind != nil {
			return newSourceError(ec.Name(), symbol, kind, resp.StatusCode(), fmt.Errorf("GET %s", url))
		}
		body = resp.Body()
		return nil
	})
	return body, err
}
