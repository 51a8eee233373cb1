package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/eddiefleurent/scranton_condor/internal/marketdata"
	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// DefaultTastytradeURL is the production REST endpoint.
const DefaultTastytradeURL = "https://api.tastyworks.com"

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TastytradeConfig configures a TastytradeClient.
type TastytradeConfig struct {
	BaseURL      string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
	// HTTPClient is the transport used for token refreshes and API calls.
	HTTPClient *http.Client
}

// TastytradeClient talks to the tastytrade REST API with an auto-refreshing
// OAuth2 session and streams market data over DXLink.
type TastytradeClient struct {
	baseURL  string
	client   *http.Client
	streamer *DXLinkStreamer
	log      *logrus.Logger
}

// Ensure TastytradeClient implements Broker at compile time.
var _ Broker = (*TastytradeClient)(nil)

// NewTastytradeClient creates a client whose access token is refreshed from
// the long-lived refresh token whenever it expires. ctx bounds token refreshes.
func NewTastytradeClient(ctx context.Context, cfg TastytradeConfig, log *logrus.Logger) *TastytradeClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTastytradeURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	oauthCfg := &oauth2.Config{
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  baseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	src := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = timeout

	t := &TastytradeClient{baseURL: baseURL, client: client, log: log}
	t.streamer = NewDXLinkStreamer(t, log)
	return t
}

// Subscribe streams market data through the client's DXLink streamer.
func (t *TastytradeClient) Subscribe(ctx context.Context, kind marketdata.EventKind, symbols []string) (<-chan marketdata.Event, error) {
	return t.streamer.Subscribe(ctx, kind, symbols)
}

// FetchChain loads the nested option chain of underlying.
func (t *TastytradeClient) FetchChain(ctx context.Context, underlying string) (Chain, error) {
	body, err := t.get(ctx, "/option-chains/"+url.PathEscape(underlying)+"/nested", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s option chain: %w", underlying, err)
	}
	chain, err := ParseNestedChain(body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s option chain: %w", underlying, err)
	}
	t.log.WithFields(logrus.Fields{"underlying": underlying, "expirations": len(chain)}).Debug("Fetched option chain")
	return chain, nil
}

// IVRank returns the implied-volatility index rank of underlying.
func (t *TastytradeClient) IVRank(ctx context.Context, underlying string) (float64, error) {
	body, err := t.get(ctx, "/market-metrics", url.Values{"symbols": {underlying}})
	if err != nil {
		return 0, fmt.Errorf("fetching %s market metrics: %w", underlying, err)
	}
	return ParseIVRank(body, underlying)
}

// QuoteToken returns a DXLink token and websocket URL.
func (t *TastytradeClient) QuoteToken(ctx context.Context) (string, string, error) {
	body, err := t.get(ctx, "/api-quote-tokens", nil)
	if err != nil {
		return "", "", fmt.Errorf("fetching quote token: %w", err)
	}
	data := gjson.GetBytes(body, "data")
	token := data.Get("token").String()
	wsURL := data.Get("dxlink-url").String()
	if token == "" || wsURL == "" {
		return "", "", fmt.Errorf("quote token response missing token or dxlink-url")
	}
	return token, wsURL, nil
}

func (t *TastytradeClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := t.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "scranton-condor/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.log.WithError(err).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 64<<10 {
			body = body[:64<<10]
		}
		return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", path, string(body))}
	}
	return body, nil
}

// ParseNestedChain decodes a nested option-chain response into a Chain keyed
// by expiration date. Streamer symbols are used as contract symbols.
func ParseNestedChain(body []byte) (Chain, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	items := gjson.GetBytes(body, "data.items")
	if !items.Exists() {
		return nil, fmt.Errorf("response has no data.items")
	}
	chain := make(Chain)
	var parseErr error
	items.ForEach(func(_, item gjson.Result) bool {
		item.Get("expirations").ForEach(func(_, exp gjson.Result) bool {
			date, err := time.Parse(models.DateLayout, exp.Get("expiration-date").String())
			if err != nil {
				parseErr = fmt.Errorf("bad expiration-date %q: %w", exp.Get("expiration-date").String(), err)
				return false
			}
			exp.Get("strikes").ForEach(func(_, s gjson.Result) bool {
				strike := s.Get("strike-price").Float()
				if sym := s.Get("call-streamer-symbol").String(); sym != "" {
					chain.Add(models.Contract{Symbol: sym, Strike: strike, Class: models.Call, Expiration: date})
				}
				if sym := s.Get("put-streamer-symbol").String(); sym != "" {
					chain.Add(models.Contract{Symbol: sym, Strike: strike, Class: models.Put, Expiration: date})
				}
				return true
			})
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return chain, nil
}

// ParseIVRank extracts the implied-volatility index rank of symbol from a
// market-metrics response.
func ParseIVRank(body []byte, symbol string) (float64, error) {
	var (
		rank  float64
		found bool
	)
	gjson.GetBytes(body, "data.items").ForEach(func(_, item gjson.Result) bool {
		if !strings.EqualFold(item.Get("symbol").String(), symbol) {
			return true
		}
		r := item.Get("implied-volatility-index-rank")
		if !r.Exists() || r.String() == "" {
			return false
		}
		rank, found = r.Float(), true
		return false
	})
	if !found {
		return 0, fmt.Errorf("no implied-volatility-index-rank for %s", symbol)
	}
	return rank, nil
}
