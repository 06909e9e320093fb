// Package kraken is a minimal REST client for the Kraken spot exchange.
//
// It covers the endpoints the band trader needs: public OHLC bars, private
// account balances, market order placement and order lookup by client order
// id. Private calls
// are signed with the account's API secret and optionally carry a TOTP
// one-time password.
//
// Usage example:
//
//	c, err := kraken.New(kraken.Config{APIKey: key, PrivateKey: secret})
//	if err != nil { log.Fatal(err) }
//	bars, last, err := c.OHLC(ctx, "XBTUSD", 1, 0)
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultBaseURL = "https://api.kraken.com"

	pathOHLC         = "/0/public/OHLC"
	pathBalanceEx    = "/0/private/BalanceEx"
	pathAddOrder     = "/0/private/AddOrder"
	pathOpenOrders   = "/0/private/OpenOrders"
	pathClosedOrders = "/0/private/ClosedOrders"
)

// ErrNoCredentials is returned by private calls on a client built without keys.
var ErrNoCredentials = errors.New("kraken: api key and private key are required for private endpoints")

// validIntervals are the bar widths, in minutes, the OHLC endpoint accepts.
var validIntervals = map[int]bool{1: true, 5: true, 15: true, 30: true, 60: true, 240: true, 1440: true, 10080: true, 21600: true}

// ValidInterval reports whether minutes is an accepted OHLC interval.
func ValidInterval(minutes int) bool { return validIntervals[minutes] }

// Config configures a Client.
type Config struct {
	APIKey     string
	PrivateKey string // base64, as issued by Kraken
	OTPSecret  string // base32 TOTP secret when the key has 2FA enabled

	BaseURL string        // default: https://api.kraken.com
	Timeout time.Duration // default: 15s
	Debug   bool
}

// Client talks to the Kraken REST API. It is safe for concurrent use.
type Client struct {
	// public requests are idempotent and retried; private ones never are, so a
	// timed-out AddOrder is not silently submitted twice.
	public  *resty.Client
	private *resty.Client

	apiKey    string
	secret    []byte
	otpSecret string

	nonceMu   sync.Mutex
	lastNonce int64
	now       func() time.Time
}

// New builds a client. PrivateKey must be valid base64 when set.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		apiKey:    cfg.APIKey,
		otpSecret: cfg.OTPSecret,
		now:       time.Now,
	}
	if cfg.PrivateKey != "" {
		secret, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("kraken: decode private key: %w", err)
		}
		c.secret = secret
	}

	c.public = resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetDebug(cfg.Debug).
		SetHeader("User-Agent", "trading-bands/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	c.private = resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetDebug(cfg.Debug).
		SetHeader("User-Agent", "trading-bands/1.0")

	return c, nil
}

// HasCredentials reports whether private endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && len(c.secret) > 0
}

// APIError carries the error strings of a Kraken response envelope,
// e.g. "EOrder:Insufficient funds".
type APIError struct {
	Path   string
	Errors []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken %s: %s", e.Path, strings.Join(e.Errors, ", "))
}

// HasPrefix reports whether any error string starts with prefix
// ("EOrder:Insufficient funds", "EAPI:").
func (e *APIError) HasPrefix(prefix string) bool {
	for _, s := range e.Errors {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// decode unwraps the {"error":[],"result":{}} envelope into out.
func decode(path string, resp *resty.Response, out any) error {
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		if !resp.IsSuccess() {
			return fmt.Errorf("kraken %s: http %d", path, resp.StatusCode())
		}
		return fmt.Errorf("kraken %s: decode response: %w", path, err)
	}
	if len(env.Error) > 0 {
		return &APIError{Path: path, Errors: env.Error}
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("kraken %s: http %d", path, resp.StatusCode())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("kraken %s: decode result: %w", path, err)
	}
	return nil
}

// nextNonce returns a strictly increasing microsecond nonce.
func (c *Client) nextNonce() int64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := c.now().UnixMicro()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

// Sign computes the API-Sign header:
// base64(HMAC-SHA512(path + SHA256(nonce + postData), secret)).
func Sign(path string, nonce int64, postData string, secret []byte) string {
	sha := sha256.Sum256([]byte(strconv.FormatInt(nonce, 10) + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// privatePost signs and sends a private request. params must not contain nonce.
func (c *Client) privatePost(ctx context.Context, path string, params url.Values, out any) error {
	if !c.HasCredentials() {
		return ErrNoCredentials
	}
	if params == nil {
		params = url.Values{}
	}
	nonce := c.nextNonce()
	params.Set("nonce", strconv.FormatInt(nonce, 10))
	if c.otpSecret != "" {
		code, err := totp.GenerateCode(c.otpSecret, c.now())
		if err != nil {
			return fmt.Errorf("kraken %s: generate otp: %w", path, err)
		}
		params.Set("otp", code)
	}
	body := params.Encode()

	resp, err := c.private.R().
		SetContext(ctx).
		SetHeader("API-Key", c.apiKey).
		SetHeader("API-Sign", Sign(path, nonce, body, c.secret)).
		SetHeader("Content-Type", "application/x-www-form-urlencoded; charset=utf-8").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("kraken %s: %w", path, err)
	}
	return decode(path, resp, out)
}
