package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"shopcore-be/internal/logger"

	"go.uber.org/zap"
)

const payosBaseURL = "https://api-merchant.payos.vn"

// payosProvider talks to a PayOS-style payment-request API. PayOS signs the
// request body and its webhook data object with an HMAC-SHA256 checksum key.
type payosProvider struct {
	clientID    string
	apiKey      string
	checksumKey string
	baseURL     string
	httpClient  *http.Client
}

func NewPayOSProvider(clientID, apiKey, checksumKey string) Provider {
	if apiKey == "" {
		logger.L().Warn("PayOS API key is empty")
	}
	return &payosProvider{
		clientID:    clientID,
		apiKey:      apiKey,
		checksumKey: checksumKey,
		baseURL:     payosBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *payosProvider) Name() string { return "payos" }

// payosOrderCode derives the numeric order code PayOS requires from the
// idempotency key, so a retried call maps to the same provider-side intent.
func payosOrderCode(idempotencyKey string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(idempotencyKey))
	return int64(h.Sum64() & 0x7fffffffffff)
}

func (p *payosProvider) CreateIntent(ctx context.Context, in CreateIntentInput) (*CreateIntentResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", "payos"),
		zap.String("order_ref", in.OrderRef),
		zap.Int64("amount", in.Amount),
	)

	orderCode := payosOrderCode(in.IdempotencyKey)
	signed := fmt.Sprintf(
		"amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		in.Amount, in.ReturnURL, in.Description, orderCode, in.ReturnURL,
	)

	body := map[string]interface{}{
		"orderCode":   orderCode,
		"amount":      in.Amount,
		"description": in.Description,
		"returnUrl":   in.ReturnURL,
		"cancelUrl":   in.ReturnURL,
		"signature":   p.sign(signed),
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, newProviderError("payos", "marshal", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v2/payment-requests", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, newProviderError("payos", "request", false, err)
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("x-client-id", p.clientID)
	req.Header.Add("x-api-key", p.apiKey)

	log.Info("Sending payment request to PayOS")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Error("PayOS request failed", zap.Error(err))
		return nil, newProviderError("payos", "network", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError("payos", "read", true, err)
	}

	if resp.StatusCode >= 500 {
		log.Error("PayOS returned server error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, newProviderError("payos", "server_error", true,
			fmt.Errorf("payos status %d: %s", resp.StatusCode, string(bodyBytes)))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("PayOS rejected payment request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, newProviderError("payos", "rejected", false,
			fmt.Errorf("payos status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var res struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
		Data struct {
			PaymentLinkID string `json:"paymentLinkId"`
			CheckoutURL   string `json:"checkoutUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return nil, newProviderError("payos", "decode", false, err)
	}
	if res.Code != "00" {
		return nil, newProviderError("payos", res.Code, false,
			fmt.Errorf("payos error: %s", res.Desc))
	}

	log.Info("PayOS payment link created",
		zap.String("payment_link_id", res.Data.PaymentLinkID),
	)

	return &CreateIntentResult{
		ProviderTxnID: res.Data.PaymentLinkID,
		RedirectURL:   res.Data.CheckoutURL,
	}, nil
}

type payosWebhook struct {
	Code      string                     `json:"code"`
	Desc      string                     `json:"desc"`
	Success   bool                       `json:"success"`
	Data      map[string]json.RawMessage `json:"data"`
	Signature string                     `json:"signature"`
}

// VerifySignature checks the HMAC-SHA256 over the webhook data object,
// canonicalized as sorted key=value pairs joined with '&'.
func (p *payosProvider) VerifySignature(_ http.Header, body []byte) error {
	var wh payosWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return ErrInvalidSignature
	}
	if wh.Signature == "" || wh.Data == nil {
		return ErrInvalidSignature
	}

	expected := p.sign(payosCanonical(wh.Data))
	if !hmac.Equal([]byte(expected), []byte(wh.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *payosProvider) ParseEvent(body []byte) (*Event, error) {
	var wh struct {
		Code string `json:"code"`
		Data struct {
			PaymentLinkID string `json:"paymentLinkId"`
			Amount        int64  `json:"amount"`
			Code          string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, ErrUnparseableEvent
	}
	if wh.Data.PaymentLinkID == "" {
		return nil, ErrUnparseableEvent
	}

	ev := &Event{
		ProviderTxnID: wh.Data.PaymentLinkID,
		Amount:        wh.Data.Amount,
	}
	switch wh.Data.Code {
	case "00":
		ev.Outcome = OutcomeSucceeded
	case "02":
		ev.Outcome = OutcomeCancelled
	default:
		ev.Outcome = OutcomeFailed
	}
	return ev, nil
}

func (p *payosProvider) QueryIntent(ctx context.Context, providerTxnID string) (*Event, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", "payos"),
		zap.String("txn_id", providerTxnID),
	)

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/v2/payment-requests/"+providerTxnID, nil)
	if err != nil {
		return nil, newProviderError("payos", "request", false, err)
	}
	req.Header.Add("x-client-id", p.clientID)
	req.Header.Add("x-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, newProviderError("payos", "network", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError("payos", "read", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error("PayOS status query failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, newProviderError("payos", "query", resp.StatusCode >= 500,
			fmt.Errorf("payos status %d", resp.StatusCode))
	}

	var res struct {
		Data struct {
			Status string `json:"status"`
			Amount int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		return nil, newProviderError("payos", "decode", false, err)
	}

	ev := &Event{ProviderTxnID: providerTxnID, Amount: res.Data.Amount}
	switch res.Data.Status {
	case "PAID":
		ev.Outcome = OutcomeSucceeded
	case "CANCELLED":
		ev.Outcome = OutcomeCancelled
	case "EXPIRED":
		ev.Outcome = OutcomeFailed
	default:
		// still pending on the provider side
		return nil, nil
	}
	return ev, nil
}

func (p *payosProvider) CancelIntent(ctx context.Context, providerTxnID string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", "payos"),
		zap.String("txn_id", providerTxnID),
	)

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v2/payment-requests/"+providerTxnID+"/cancel", nil)
	if err != nil {
		return err
	}
	req.Header.Add("x-client-id", p.clientID)
	req.Header.Add("x-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Error("PayOS cancel request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		log.Error("Failed to cancel PayOS payment",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return fmt.Errorf("payos cancel error: status %d", resp.StatusCode)
	}

	log.Info("PayOS payment cancelled")
	return nil
}

func (p *payosProvider) sign(data string) string {
	mac := hmac.New(sha256.New, []byte(p.checksumKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// payosCanonical renders a data object as sorted key=value pairs. Raw JSON
// values keep their wire form so numbers round-trip without float drift;
// string values are unquoted.
func payosCanonical(data map[string]json.RawMessage) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		raw := data[k]
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, "&")
}
