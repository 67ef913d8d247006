package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

var (
	errEndpointRequired = errors.New("lightning endpoint is required")
	errAPIKeyRequired   = errors.New("lightning api key is required")
	errWalletRequired   = errors.New("lightning wallet id is required")
)

// Invoice is a freshly issued Lightning invoice.
type Invoice struct {
	PaymentHash    string
	PaymentRequest string
	AmountSats     int64
	ExpiresAt      time.Time
}

// InvoiceStatus is the normalized status of an invoice plus the provider's
// raw status string for audit logs.
type InvoiceStatus struct {
	State     enums.InvoiceState
	RawStatus string
}

// Client talks to the wallet provider's GraphQL API. Both calls are
// idempotent from the caller's perspective and safe to retry.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	walletID   string
}

// NewClient validates the configuration and builds a gateway client.
func NewClient(ctx context.Context, cfg config.LightningConfig, logg *logger.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	walletID := strings.TrimSpace(cfg.WalletID)
	if walletID == "" {
		return nil, errWalletRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	if logg != nil {
		logg.Info(ctx, "lightning gateway client initialized")
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		walletID:   walletID,
	}, nil
}

const createInvoiceMutation = `mutation createInvoice($input: LnInvoiceCreateInput!) {
  lnInvoiceCreate(input: $input) {
    invoice { paymentHash paymentRequest satoshis }
    errors { message }
  }
}`

const invoiceStatusQuery = `query invoiceStatus($paymentHash: PaymentHash!) {
  lnInvoicePaymentStatusByHash(input: { paymentHash: $paymentHash }) {
    status
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type createInvoiceResponse struct {
	Data struct {
		LnInvoiceCreate struct {
			Invoice *struct {
				PaymentHash    string `json:"paymentHash"`
				PaymentRequest string `json:"paymentRequest"`
				Satoshis       int64  `json:"satoshis"`
			} `json:"invoice"`
			Errors []graphqlError `json:"errors"`
		} `json:"lnInvoiceCreate"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type invoiceStatusResponse struct {
	Data struct {
		LnInvoicePaymentStatusByHash *struct {
			Status string `json:"status"`
		} `json:"lnInvoicePaymentStatusByHash"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// CreateInvoice issues an invoice for the given amount in satoshis.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string, expiresIn time.Duration) (*Invoice, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("invoice amount must be positive, got %d", amountSats)
	}
	expiresInMinutes := int(expiresIn / time.Minute)
	if expiresInMinutes <= 0 {
		expiresInMinutes = 1
	}

	var resp createInvoiceResponse
	err := c.do(ctx, graphqlRequest{
		Query: createInvoiceMutation,
		Variables: map[string]any{
			"input": map[string]any{
				"walletId":         c.walletID,
				"amount":           amountSats,
				"memo":             memo,
				"expiresInMinutes": expiresInMinutes,
			},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("gateway rejected invoice creation: %s", resp.Errors[0].Message)
	}
	if payloadErrs := resp.Data.LnInvoiceCreate.Errors; len(payloadErrs) > 0 {
		return nil, fmt.Errorf("gateway rejected invoice creation: %s", payloadErrs[0].Message)
	}
	invoice := resp.Data.LnInvoiceCreate.Invoice
	if invoice == nil || invoice.PaymentHash == "" {
		return nil, errors.New("gateway returned no invoice")
	}

	return &Invoice{
		PaymentHash:    invoice.PaymentHash,
		PaymentRequest: invoice.PaymentRequest,
		AmountSats:     invoice.Satoshis,
		ExpiresAt:      time.Now().UTC().Add(time.Duration(expiresInMinutes) * time.Minute),
	}, nil
}

// CheckInvoiceStatus polls the provider for the invoice identified by hash.
func (c *Client) CheckInvoiceStatus(ctx context.Context, paymentHash string) (*InvoiceStatus, error) {
	if strings.TrimSpace(paymentHash) == "" {
		return nil, errors.New("payment hash is required")
	}

	var resp invoiceStatusResponse
	err := c.do(ctx, graphqlRequest{
		Query:     invoiceStatusQuery,
		Variables: map[string]any{"paymentHash": paymentHash},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("gateway rejected status lookup: %s", resp.Errors[0].Message)
	}
	payload := resp.Data.LnInvoicePaymentStatusByHash
	if payload == nil {
		return nil, errors.New("gateway returned no invoice status")
	}

	return &InvoiceStatus{
		State:     normalizeStatus(payload.Status),
		RawStatus: payload.Status,
	}, nil
}

func normalizeStatus(raw string) enums.InvoiceState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "SETTLED":
		return enums.InvoiceStatePaid
	case "EXPIRED":
		return enums.InvoiceStateExpired
	default:
		return enums.InvoiceStatePending
	}
}

func (c *Client) do(ctx context.Context, payload graphqlRequest, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call lightning gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("lightning gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
