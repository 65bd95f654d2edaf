package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DarajaAdapter talks to Safaricom's Daraja API: OAuth token issue,
// STK-Push initiation and STK-Push status query.
type DarajaAdapter struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	IsProduction   bool

	baseURL    string // test override
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaAdapter(key, secret, shortCode, passkey, callbackURL string, isProd bool) *DarajaAdapter {
	return &DarajaAdapter{
		ConsumerKey:    key,
		ConsumerSecret: secret,
		ShortCode:      shortCode,
		Passkey:        passkey,
		CallbackURL:    callbackURL,
		IsProduction:   isProd,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *DarajaAdapter) base() string {
	if d.baseURL != "" {
		return d.baseURL
	}
	if d.IsProduction {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// accessToken returns a cached OAuth token, fetching a fresh one when the
// cached token is within 30s of expiry.
func (d *DarajaAdapter) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && time.Until(d.tokenExpiry) > 30*time.Second {
		return d.token, nil
	}

	url := d.base() + "/oauth/v1/generate?grant_type=client_credentials"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	httpReq.SetBasicAuth(d.ConsumerKey, d.ConsumerSecret)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("daraja oauth request: %w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("daraja oauth failed: %w: http=%d body=%s", ErrGatewayRejected, resp.StatusCode, string(raw))
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"` // Daraja sends seconds as a string
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("daraja oauth decode: %w body=%s", err, string(raw))
	}

	ttl, err := strconv.Atoi(res.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3599
	}

	d.token = res.AccessToken
	d.tokenExpiry = time.Now().Add(time.Duration(ttl) * time.Second)
	return d.token, nil
}

// password is base64(shortcode+passkey+timestamp) per the STK-Push spec.
func (d *DarajaAdapter) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(d.ShortCode + d.Passkey + timestamp))
}

func darajaTimestamp(t time.Time) string {
	return t.Format("20060102150405")
}

func (d *DarajaAdapter) Push(ctx context.Context, req PushRequest) (PushAck, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return PushAck{}, err
	}

	ts := darajaTimestamp(time.Now())

	// Daraja amounts are whole shillings.
	payload := map[string]any{
		"BusinessShortCode": d.ShortCode,
		"Password":          d.password(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.AmountCents / 100,
		"PartyA":            req.PhoneNumber,
		"PartyB":            d.ShortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       d.CallbackURL,
		"AccountReference":  req.Reference,
		"TransactionDesc":   req.Description,
	}

	body, _ := json.Marshal(payload)

	url := d.base() + "/mpesa/stkpush/v1/processrequest"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return PushAck{}, fmt.Errorf("daraja stkpush request: %w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return PushAck{}, fmt.Errorf("daraja stkpush failed: %w: http=%d body=%s", ErrGatewayRejected, resp.StatusCode, string(raw))
	}

	var res struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return PushAck{}, fmt.Errorf("daraja stkpush decode: %w body=%s", err, string(raw))
	}

	if res.ResponseCode != "0" {
		return PushAck{}, fmt.Errorf("daraja stkpush: %w: code=%s desc=%s", ErrGatewayRejected, res.ResponseCode, res.ResponseDescription)
	}

	return PushAck{
		MerchantRequestID: res.MerchantRequestID,
		CheckoutRequestID: res.CheckoutRequestID,
		ResponseInfo:      res.ResponseDescription,
		CustomerMessage:   res.CustomerMessage,
	}, nil
}

func (d *DarajaAdapter) QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResult, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return StatusResult{}, err
	}

	ts := darajaTimestamp(time.Now())
	payload := map[string]string{
		"BusinessShortCode": d.ShortCode,
		"Password":          d.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}
	body, _ := json.Marshal(payload)

	url := d.base() + "/mpesa/stkpushquery/v1/query"
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return StatusResult{}, fmt.Errorf("daraja query request: %w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	// Daraja answers errors (including "still processing" and unknown
	// CheckoutRequestIDs) with 4xx/5xx plus an error envelope. Decode anyway
	// and map; only an undecodable body is a real error.
	var res struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return StatusResult{}, fmt.Errorf("daraja query decode: http=%d err=%w body=%s", resp.StatusCode, err, string(raw))
	}

	if res.ErrorCode != "" {
		// 500.001.1001 = "the transaction is being processed"
		if res.ErrorCode == "500.001.1001" {
			return StatusResult{State: StatePending, ResultCode: res.ErrorCode, ResultDesc: res.ErrorMessage}, nil
		}
		return StatusResult{State: StateUnknown, ResultCode: res.ErrorCode, ResultDesc: res.ErrorMessage}, nil
	}

	if res.ResultCode == "" {
		// Decodable body with neither a ResultCode nor a Daraja error envelope:
		// an intermediary answered in Daraja's place (outage, load balancer
		// error page). Not a verdict on the transaction.
		return StatusResult{}, fmt.Errorf("daraja query: %w: http=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(raw))
	}

	return StatusResult{
		State:      stateFromResultCode(res.ResultCode),
		ResultCode: res.ResultCode,
		ResultDesc: res.ResultDesc,
	}, nil
}

// stateFromResultCode maps Daraja STK result codes onto lifecycle states.
func stateFromResultCode(code string) State {
	switch code {
	case "0":
		return StateConfirmed
	case "1037": // DS timeout: prompt expired on the handset
		return StateExpired
	default:
		// 1 insufficient funds, 1032 cancelled by user, 2001 wrong PIN, ...
		return StateFailed
	}
}
