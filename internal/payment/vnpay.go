package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopcore-be/internal/logger"

	"go.uber.org/zap"
)

const (
	vnpayPayURL  = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	vnpayAPIURL  = "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"
	vnpayVersion = "2.1.0"
)

// vnpayProvider implements the VNPAY redirect flow. Intent creation builds
// a signed payment URL locally (no API call); settlement arrives as an IPN
// with form-encoded parameters signed with HMAC-SHA512.
type vnpayProvider struct {
	tmnCode    string
	hashSecret string
	payURL     string
	apiURL     string
	httpClient *http.Client
	now        func() time.Time
}

func NewVNPayProvider(tmnCode, hashSecret string) Provider {
	if hashSecret == "" {
		logger.L().Warn("VNPAY hash secret is empty")
	}
	return &vnpayProvider{
		tmnCode:    tmnCode,
		hashSecret: hashSecret,
		payURL:     vnpayPayURL,
		apiURL:     vnpayAPIURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

func (v *vnpayProvider) Name() string { return "vnpay" }

func (v *vnpayProvider) CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", "vnpay"),
		zap.String("order_ref", in.OrderRef),
		zap.Int64("amount", in.Amount),
	)

	// VNPAY expects the amount multiplied by 100.
	params := url.Values{}
	params.Set("vnp_Version", vnpayVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", v.tmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(in.Amount*100, 10))
	params.Set("vnp_CurrCode", in.Currency)
	params.Set("vnp_TxnRef", in.IdempotencyKey)
	params.Set("vnp_OrderInfo", in.Description)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", in.ReturnURL)
	params.Set("vnp_CreateDate", v.now().Format("20060102150405"))

	signed := vnpayCanonical(params)
	params.Set("vnp_SecureHash", v.sign(signed))

	redirect := v.payURL + "?" + params.Encode()

	log.Info("VNPAY payment URL built", zap.String("txn_ref", in.IdempotencyKey))

	return &CreateIntentResult{
		ProviderTxnID: in.IdempotencyKey,
		RedirectURL:   redirect,
	}, nil
}

// VerifySignature validates the vnp_SecureHash over the sorted IPN
// parameters, excluding the hash fields themselves.
func (v *vnpayProvider) VerifySignature(_ http.Header, body []byte) error {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return ErrInvalidSignature
	}

	received := params.Get("vnp_SecureHash")
	if received == "" {
		return ErrInvalidSignature
	}
	params.Del("vnp_SecureHash")
	params.Del("vnp_SecureHashType")

	expected := v.sign(vnpayCanonical(params))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *vnpayProvider) ParseEvent(body []byte) (*Event, error) {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, ErrUnparseableEvent
	}

	txnRef := params.Get("vnp_TxnRef")
	if txnRef == "" {
		return nil, ErrUnparseableEvent
	}

	amount, _ := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)

	ev := &Event{
		ProviderTxnID: txnRef,
		Amount:        amount / 100,
	}
	switch params.Get("vnp_ResponseCode") {
	case "00":
		ev.Outcome = OutcomeSucceeded
	case "24":
		ev.Outcome = OutcomeCancelled
	default:
		ev.Outcome = OutcomeFailed
	}
	return ev, nil
}

func (v *vnpayProvider) QueryIntent(ctx context.Context, providerTxnID string) (*Event, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", "vnpay"),
		zap.String("txn_ref", providerTxnID),
	)

	body := map[string]string{
		"vnp_Version":   vnpayVersion,
		"vnp_Command":   "querydr",
		"vnp_TmnCode":   v.tmnCode,
		"vnp_TxnRef":    providerTxnID,
		"vnp_OrderInfo": "status query",
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError("vnpay", "marshal", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", v.apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, newProviderError("vnpay", "request", false, err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, newProviderError("vnpay", "network", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError("vnpay", "read", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error("VNPAY status query failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, newProviderError("vnpay", "query", resp.StatusCode >= 500,
			fmt.Errorf("vnpay status %d", resp.StatusCode))
	}

	var res struct {
		TransactionStatus string `json:"vnp_TransactionStatus"`
		Amount            string `json:"vnp_Amount"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return nil, newProviderError("vnpay", "decode", false, err)
	}

	amount, _ := strconv.ParseInt(res.Amount, 10, 64)
	ev := &Event{ProviderTxnID: providerTxnID, Amount: amount / 100}
	switch res.TransactionStatus {
	case "00":
		ev.Outcome = OutcomeSucceeded
	case "01":
		// still pending on the provider side
		return nil, nil
	case "02":
		ev.Outcome = OutcomeCancelled
	default:
		ev.Outcome = OutcomeFailed
	}
	return ev, nil
}

// CancelIntent is a local no-op: VNPAY's redirect flow has no cancel API
// for an unpaid transaction; the payment URL simply goes unused.
func (v *vnpayProvider) CancelIntent(ctx context.Context, providerTxnID string) error {
	logger.FromCtx(ctx).Info("VNPAY intent abandoned locally",
		zap.String("txn_ref", providerTxnID),
	)
	return nil
}

func (v *vnpayProvider) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(v.hashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// vnpayCanonical renders params as sorted, URL-encoded key=value pairs.
func vnpayCanonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(params.Get(k)))
	}
	return strings.Join(parts, "&")
}
