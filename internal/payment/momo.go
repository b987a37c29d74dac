package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shopcore-be/internal/logger"

	"go.uber.org/zap"
)

const momoBaseURL = "https://payment.momo.vn"

// momoProvider talks to a MOMO-style wallet gateway. Every request and IPN
// carries an HMAC-SHA256 signature over a canonical ordered field string.
type momoProvider struct {
	partnerCode string
	accessKey   string
	secretKey   string
	baseURL     string
	ipnURL      string
	httpClient  *http.Client
}

func NewMomoProvider(partnerCode, accessKey, secretKey, ipnURL string) Provider {
	if secretKey == "" {
		logger.L().Warn("MOMO secret key is empty")
	}
	return &momoProvider{
		partnerCode: partnerCode,
		accessKey:   accessKey,
		secretKey:   secretKey,
		baseURL:     momoBaseURL,
		ipnURL:      ipnURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (m *momoProvider) Name() string { return "momo" }

func (m *momoProvider) CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", "momo"),
		zap.String("order_ref", in.OrderRef),
		zap.Int64("amount", in.Amount),
	)

	// orderId doubles as requestId; both derive from the idempotency key so
	// a retried call maps to the same provider-side transaction.
	orderID := in.IdempotencyKey
	requestType := "captureWallet"

	signed := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		m.accessKey, in.Amount, m.ipnURL, orderID, in.Description,
		m.partnerCode, in.ReturnURL, orderID, requestType,
	)

	body := map[string]interface{}{
		"partnerCode": m.partnerCode,
		"requestId":   orderID,
		"amount":      in.Amount,
		"orderId":     orderID,
		"orderInfo":   in.Description,
		"redirectUrl": in.ReturnURL,
		"ipnUrl":      m.ipnURL,
		"requestType": requestType,
		"extraData":   "",
		"lang":        "vi",
		"signature":   m.sign(signed),
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError("momo", "marshal", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/v2/gateway/api/create", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, newProviderError("momo", "request", false, err)
	}
	req.Header.Add("Content-Type", "application/json")

	log.Info("Sending payment request to MOMO")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Error("MOMO request failed", zap.Error(err))
		return nil, newProviderError("momo", "network", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError("momo", "read", true, err)
	}
	if resp.StatusCode >= 500 {
		log.Error("MOMO returned server error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, newProviderError("momo", "server_error", true,
			fmt.Errorf("momo status %d", resp.StatusCode))
	}

	var res struct {
		ResultCode int    `json:"resultCode"`
		Message    string `json:"message"`
		PayURL     string `json:"payUrl"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return nil, newProviderError("momo", "decode", false, err)
	}
	if res.ResultCode != 0 {
		log.Error("MOMO rejected payment request",
			zap.Int("result_code", res.ResultCode),
			zap.String("message", res.Message),
		)
		return nil, newProviderError("momo", fmt.Sprintf("%d", res.ResultCode), false,
			fmt.Errorf("momo error: %s", res.Message))
	}

	log.Info("MOMO payment created", zap.String("order_id", orderID))

	return &CreateIntentResult{
		ProviderTxnID: orderID,
		RedirectURL:   res.PayURL,
	}, nil
}

type momoIPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

func (m *momoProvider) VerifySignature(_ http.Header, body []byte) error {
	var ipn momoIPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return ErrInvalidSignature
	}
	if ipn.Signature == "" {
		return ErrInvalidSignature
	}

	signed := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		m.accessKey, ipn.Amount, ipn.ExtraData, ipn.Message, ipn.OrderID,
		ipn.OrderInfo, ipn.OrderType, ipn.PartnerCode, ipn.PayType,
		ipn.RequestID, ipn.ResponseTime, ipn.ResultCode, ipn.TransID,
	)

	if !hmac.Equal([]byte(m.sign(signed)), []byte(ipn.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func (m *momoProvider) ParseEvent(body []byte) (*Event, error) {
	var ipn momoIPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, ErrUnparseableEvent
	}
	if ipn.OrderID == "" {
		return nil, ErrUnparseableEvent
	}

	ev := &Event{
		ProviderTxnID: ipn.OrderID,
		Amount:        ipn.Amount,
	}
	switch ipn.ResultCode {
	case 0:
		ev.Outcome = OutcomeSucceeded
	case 1003, 1006:
		// cancelled by operator or declined by the payer
		ev.Outcome = OutcomeCancelled
	default:
		ev.Outcome = OutcomeFailed
	}
	return ev, nil
}

func (m *momoProvider) QueryIntent(ctx context.Context, providerTxnID string) (*Event, error) {
	signed := fmt.Sprintf(
		"accessKey=%s&orderId=%s&partnerCode=%s&requestId=%s",
		m.accessKey, providerTxnID, m.partnerCode, providerTxnID,
	)

	body := map[string]interface{}{
		"partnerCode": m.partnerCode,
		"requestId":   providerTxnID,
		"orderId":     providerTxnID,
		"lang":        "vi",
		"signature":   m.sign(signed),
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError("momo", "marshal", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/v2/gateway/api/query", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, newProviderError("momo", "request", false, err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, newProviderError("momo", "network", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError("momo", "read", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError("momo", "query", resp.StatusCode >= 500,
			fmt.Errorf("momo status %d", resp.StatusCode))
	}

	var res struct {
		ResultCode int   `json:"resultCode"`
		Amount     int64 `json:"amount"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return nil, newProviderError("momo", "decode", false, err)
	}

	ev := &Event{ProviderTxnID: providerTxnID, Amount: res.Amount}
	switch res.ResultCode {
	case 0:
		ev.Outcome = OutcomeSucceeded
	case 1000:
		// initiated, payer has not confirmed yet
		return nil, nil
	case 1003, 1006:
		ev.Outcome = OutcomeCancelled
	default:
		ev.Outcome = OutcomeFailed
	}
	return ev, nil
}

// CancelIntent is a local no-op: the wallet flow has no public cancel API,
// an unconfirmed transaction simply times out on the provider side.
func (m *momoProvider) CancelIntent(ctx context.Context, providerTxnID string) error {
	logger.FromCtx(ctx).Info("MOMO intent abandoned locally",
		zap.String("order_id", providerTxnID),
	)
	return nil
}

func (m *momoProvider) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(m.secretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
