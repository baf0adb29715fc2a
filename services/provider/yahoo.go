package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultYahooBaseURL is the chart API endpoint prefix
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

	yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// chartResponse mirrors the subset of the Yahoo chart payload we read
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

// YahooClient fetches quotes and daily history from the Yahoo chart API
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooClient creates a Yahoo chart API client
func NewYahooClient() *YahooClient {
	return &YahooClient{
		baseURL: DefaultYahooBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewYahooClientWithBaseURL is used by tests to point at a stub server
func NewYahooClientWithBaseURL(baseURL string) *YahooClient {
	c := NewYahooClient()
	c.baseURL = baseURL
	return c
}

// FetchQuote returns the latest snapshot for symbol, or nil when the
// provider has no data for it.
func (c *YahooClient) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "5d")

	result, err := c.fetchChart(ctx, symbol, params)
	if err != nil || result == nil {
		return nil, err
	}

	meta := result.Meta
	q := &Quote{
		Symbol:    symbol,
		Price:     meta.RegularMarketPrice,
		PrevClose: meta.ChartPreviousClose,
		Time:      time.Unix(meta.RegularMarketTime, 0).UTC(),
	}
	if meta.RegularMarketTime == 0 {
		q.Time = time.Now().UTC()
	}

	// Day OHLCV comes from the last bar of the window
	if bars := chartBars(result); len(bars) > 0 {
		last := bars[len(bars)-1]
		q.Open = last.Open
		q.High = last.High
		q.Low = last.Low
		q.Volume = last.Volume
		if q.Price == 0 && last.Close != nil {
			q.Price = *last.Close
		}
		if q.PrevClose == 0 && len(bars) > 1 && bars[len(bars)-2].Close != nil {
			q.PrevClose = *bars[len(bars)-2].Close
		}
	}

	if q.Price == 0 {
		// Symbol variant with no tradable data
		return nil, nil
	}
	return q, nil
}

// FetchHistory returns daily bars for symbol. A nil start requests the
// full available history; end is exclusive and defaults to now.
func (c *YahooClient) FetchHistory(ctx context.Context, symbol string, start, end *time.Time) ([]Bar, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	if start == nil {
		params.Set("range", "max")
	} else {
		params.Set("period1", strconv.FormatInt(start.Unix(), 10))
		until := time.Now().UTC()
		if end != nil {
			until = *end
		}
		params.Set("period2", strconv.FormatInt(until.Unix(), 10))
	}

	result, err := c.fetchChart(ctx, symbol, params)
	if err != nil || result == nil {
		return nil, err
	}

	return chartBars(result), nil
}

// fetchChart performs one chart API call. Unknown symbols map to
// (nil, nil) so resolver candidates can be tried without error handling.
func (c *YahooClient) fetchChart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("chart request for %s: status %d: %s", symbol, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart response: %w", err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chart response for %s: %w", symbol, err)
	}

	if parsed.Chart.Error != nil {
		if parsed.Chart.Error.Code == "Not Found" {
			return nil, nil
		}
		return nil, fmt.Errorf("chart API error for %s: %s: %s", symbol, parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, nil
	}

	return &parsed.Chart.Result[0], nil
}

// chartBars zips the parallel chart arrays into Bars, normalizing
// non-finite values to nil at this boundary.
func chartBars(result *chartResult) []Bar {
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil
	}

	q := result.Indicators.Quote[0]
	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		bars = append(bars, Bar{
			Date:   time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:   finite(at(q.Open, i)),
			High:   finite(at(q.High, i)),
			Low:    finite(at(q.Low, i)),
			Close:  finite(at(q.Close, i)),
			Volume: atInt(q.Volume, i),
		})
	}
	return bars
}

func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}

func atInt(vals []*int64, i int) *int64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}

func finite(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}
