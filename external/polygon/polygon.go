// Package polygon is C2, the UpstreamGateway: an opaque pageable fetcher
// over the upstream market-data REST API, adapted from the teacher's
// ListSymbols pagination shape and external/plaid's singleton-client +
// retry pattern.
//
// Per §4.2, engines never construct URLs; they only pass resource paths
// and parameter maps, and pagination is followed transparently until
// exhausted.
package polygon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/valyala/fasthttp"
	try "gopkg.in/matryer/try.v1"

	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/gberrors"
)

const (
	defaultBaseURL = "https://api.polygon.io"
	requestTimeout = 30 * time.Second
	maxRetries     = 3
)

// Gateway is the interface the engines consume (§4.2). It is implemented
// by Client; this package's tests swap in a fake Client.request function
// rather than a fake Gateway so the pagination-following logic stays
// exercised, while the engine tests implement Gateway directly.
type Gateway interface {
	ListSplits(ticker, fromDate, toDate string) ([]SplitResult, error)
	ListDividends(ticker, fromDate, toDate string) ([]DividendResult, error)
	DailyAggregates(ticker, fromDate, toDate string) ([]AggResult, error)
	TickerEvents(ticker string) ([]TickerEventResult, error)
	ActiveTickers() ([]TickerResult, error)
	FullMarketSnapshot() ([]SnapshotResult, error)
	Financials(ticker string) ([]FinancialResult, error)
}

// Client is the concrete Gateway backed by fasthttp, following
// external/plaid's injectable-request-function shape so tests can swap in
// a fake transport without a live server.
type Client struct {
	baseURL string
	apiKey  string
	request func(req *fasthttp.Request, resp *fasthttp.Response) error
}

func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		request: doWithRetry,
	}
}

func doWithRetry(req *fasthttp.Request, resp *fasthttp.Response) error {
	return try.Do(func(attempt int) (bool, error) {
		err := fasthttp.DoTimeout(req, resp, requestTimeout)
		return attempt < maxRetries, err
	})
}

func (c *Client) buildURL(resource string, params map[string]string) string {
	v := url.Values{}
	for key, val := range params {
		v.Set(key, val)
	}
	v.Set("apiKey", c.apiKey)
	return fmt.Sprintf("%s/%s?%s", c.baseURL, resource, v.Encode())
}

// fetchPage performs one GET and decodes the body into dst.
func (c *Client) fetchPage(fullURL string, dst interface{}) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fullURL)
	req.Header.SetMethod(http.MethodGet)

	if err := c.request(req, resp); err != nil {
		return gberrors.New(gberrors.UpstreamFailure, "request failed").WithError(err)
	}

	if resp.StatusCode() >= fasthttp.StatusMultipleChoices {
		return gberrors.New(gberrors.UpstreamFailure,
			fmt.Sprintf("status code %d", resp.StatusCode()))
	}

	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return gberrors.New(gberrors.UpstreamFailure, "decode failed").WithError(err)
	}
	return nil
}

// fetchPages walks resource's pagination until next_url is exhausted.
// This is the one place in the gateway that knows about next_url; every
// concrete method below only supplies the resource path, params, and
// element type.
func fetchPages[T any](c *Client, resource string, params map[string]string) ([]T, error) {
	var all []T
	next := c.buildURL(resource, params)

	for next != "" {
		var p page[T]
		if err := c.fetchPage(next, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		if p.NextURL == "" {
			break
		}
		// next_url sometimes omits the API key on this upstream; reattach
		// it rather than trust the link carries one.
		if u, err := url.Parse(p.NextURL); err == nil {
			q := u.Query()
			q.Set("apiKey", c.apiKey)
			u.RawQuery = q.Encode()
			next = u.String()
		} else {
			next = p.NextURL
		}
	}
	return all, nil
}

func (c *Client) ListSplits(ticker, fromDate, toDate string) ([]SplitResult, error) {
	params := map[string]string{
		"ticker":             ticker,
		"execution_date.gte": fromDate,
		"execution_date.lte": toDate,
		"order":              "asc",
		"limit":              "1000",
	}
	return fetchPages[SplitResult](c, "v3/reference/splits", params)
}

func (c *Client) ListDividends(ticker, fromDate, toDate string) ([]DividendResult, error) {
	params := map[string]string{
		"ticker":               ticker,
		"ex_dividend_date.gte": fromDate,
		"ex_dividend_date.lte": toDate,
		"order":                "asc",
		"limit":                "1000",
	}
	return fetchPages[DividendResult](c, "v3/reference/dividends", params)
}

func (c *Client) DailyAggregates(ticker, fromDate, toDate string) ([]AggResult, error) {
	resource := fmt.Sprintf("v2/aggs/ticker/%s/range/1/day/%s/%s", ticker, fromDate, toDate)
	params := map[string]string{
		"adjusted": "false",
		"sort":     "desc",
		"limit":    "5000",
	}
	return fetchPages[AggResult](c, resource, params)
}

func (c *Client) TickerEvents(ticker string) ([]TickerEventResult, error) {
	resource := fmt.Sprintf("v3/reference/tickers/%s/events", ticker)
	params := map[string]string{
		"types": "ticker_change,delisted",
		"limit": "1000",
	}
	events, err := fetchPages[TickerEventResult](c, resource, params)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date < events[j].Date })
	return events, nil
}

func (c *Client) ActiveTickers() ([]TickerResult, error) {
	params := map[string]string{
		"type":   "CS",
		"market": "stocks",
		"active": "true",
		"limit":  "1000",
	}
	return fetchPages[TickerResult](c, "v3/reference/tickers", params)
}

// FullMarketSnapshot is a single non-paginated call returning every
// ticker's prev-day and day bars, per §4.5.1.
func (c *Client) FullMarketSnapshot() ([]SnapshotResult, error) {
	var env snapshotEnvelope
	fullURL := c.buildURL("v2/snapshot/locale/us/markets/stocks/tickers", nil)
	if err := c.fetchPage(fullURL, &env); err != nil {
		return nil, err
	}
	return env.Tickers, nil
}

func (c *Client) Financials(ticker string) ([]FinancialResult, error) {
	params := map[string]string{
		"ticker":    ticker,
		"timeframe": "quarterly",
		"order":     "asc",
		"sort":      "filing_date",
		"limit":     "100",
	}
	results, err := fetchPages[FinancialResult](c, "vX/reference/financials", params)
	if err != nil {
		log.Error("financials fetch failed", "ticker", ticker, "error", err)
		return nil, err
	}
	return results, nil
}
