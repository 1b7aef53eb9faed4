package ledgerapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/types"
)

// DefaultBaseURL is the production ledger endpoint.
const DefaultBaseURL = "https://api.mobilyflow.com/v1/"

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL     string
	AppID       string
	APIKey      string
	Environment types.Environment
	Locales     []string
	// Region returns the current storefront region, or "" when unknown.
	Region     func() string
	Device     types.Device
	SDKVersion string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// HTTPClient talks to the ledger REST API.
type HTTPClient struct {
	cfg    HTTPConfig
	http   *resty.Client
	logger *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for cfg.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "ApiKey "+cfg.APIKey).
		SetHeader("platform", string(types.PlatformAndroid)).
		SetHeader("sdk_version", cfg.SDKVersion)

	return &HTTPClient{cfg: cfg, http: hc, logger: cfg.Logger}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (c *HTTPClient) app(path string) string {
	return "/apps/" + c.cfg.AppID + path
}

func (c *HTTPClient) locale() string { return strings.Join(c.cfg.Locales, ",") }

func (c *HTTPClient) region() string {
	if c.cfg.Region == nil {
		return ""
	}
	return c.cfg.Region()
}

func (c *HTTPClient) catalogRequest(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx).
		SetQueryParam("environment", string(c.cfg.Environment)).
		SetQueryParam("locale", c.locale()).
		SetQueryParam("platform", string(types.PlatformAndroid))
	if region := c.region(); region != "" {
		r.SetQueryParam("region", region)
	}
	return r
}

// do executes r and classifies failures: transport errors are
// ErrServerUnavailable, non-2xx responses are ErrUnknown unless the body
// carries a transfer error code.
func (c *HTTPClient) do(op string, r *resty.Request, method, path string) error {
	var apiErr apiError
	resp, err := r.SetError(&apiErr).Execute(method, path)
	if err != nil {
		return fmt.Errorf("ledgerapi: %s: %w: %v", op, errs.ErrServerUnavailable, err)
	}
	if resp.IsError() {
		if sentinel, ok := transferErrors[strings.ToLower(apiErr.ErrorCode)]; ok {
			return fmt.Errorf("ledgerapi: %s: %w", op, sentinel)
		}
		c.logger.Warn("ledgerapi: request failed", "op", op, "status", resp.StatusCode(), "body", resp.String())
		return fmt.Errorf("ledgerapi: %s: status %d: %w", op, resp.StatusCode(), errs.ErrUnknown)
	}
	return nil
}

var transferErrors = map[string]error{
	"nothing_to_transfer":       errs.ErrNothingToTransfer,
	"transfer_to_same_customer": errs.ErrTransferToSameCustomer,
	"already_pending":           errs.ErrTransferAlreadyPending,
}

func (c *HTTPClient) Login(ctx context.Context, externalRef string) (*LoginResponse, error) {
	body := map[string]any{
		"externalRef": externalRef,
		"environment": c.cfg.Environment,
		"locale":      c.locale(),
		"device":      c.cfg.Device,
	}
	if region := c.region(); region != "" {
		body["region"] = region
	}

	var out envelope[loginDTO]
	r := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out)
	if err := c.do("login", r, resty.MethodPost, c.app("/customers/login/android")); err != nil {
		return nil, err
	}
	if err := out.Data.validate(); err != nil {
		return nil, fmt.Errorf("ledgerapi: login: %w", err)
	}

	d := out.Data
	return &LoginResponse{
		Customer: customer.Customer{
			ID:                d.Customer.ID,
			ExternalRef:       d.Customer.ExternalRef,
			ForwardingEnabled: d.Customer.ForwardNotificationEnable,
		},
		PlatformOriginalTransactionIDs: d.PlatformOriginalTransactionIDs,
		Entitlements:                   d.Entitlements,
	}, nil
}

func (c *HTTPClient) Products(ctx context.Context, identifiers []string) ([]ProductDTO, error) {
	var out envelope[[]ProductDTO]
	r := c.catalogRequest(ctx).SetResult(&out)
	if len(identifiers) > 0 {
		r.SetQueryParam("identifiers", strings.Join(identifiers, ","))
	}
	if err := c.do("products", r, resty.MethodGet, c.app("/products/for-app")); err != nil {
		return nil, err
	}
	if err := validateAll("products", out.Data, (*ProductDTO).Validate); err != nil {
		return nil, fmt.Errorf("ledgerapi: products: %w", err)
	}
	return out.Data, nil
}

func (c *HTTPClient) CustomerEntitlements(ctx context.Context, customerID string) ([]EntitlementDTO, error) {
	var out envelope[[]EntitlementDTO]
	r := c.catalogRequest(ctx).SetResult(&out)
	if err := c.do("entitlements", r, resty.MethodGet, c.app("/customers/"+customerID+"/entitlements")); err != nil {
		return nil, err
	}
	if err := validateAll("entitlements", out.Data, (*EntitlementDTO).Validate); err != nil {
		return nil, fmt.Errorf("ledgerapi: entitlements: %w", err)
	}
	return out.Data, nil
}

func (c *HTTPClient) MapTransactions(ctx context.Context, customerID string, items []MapTransactionItem) error {
	r := c.http.R().SetContext(ctx).SetBody(map[string]any{
		"customerId":   customerID,
		"transactions": items,
	})
	return c.do("map transactions", r, resty.MethodPost, c.app("/customers/mappings/android"))
}

func (c *HTTPClient) MinimalProduct(ctx context.Context, sku string) (*MinimalProduct, error) {
	var out envelope[MinimalProduct]
	r := c.http.R().SetContext(ctx).SetResult(&out)
	if err := c.do("minimal product", r, resty.MethodGet, c.app("/products/minimal-product-for-android-purchase/"+sku)); err != nil {
		return nil, err
	}
	if out.Data.Type == "" {
		return nil, fmt.Errorf("ledgerapi: minimal product: %w", parseErr("type", "empty"))
	}
	return &out.Data, nil
}

func (c *HTTPClient) WebhookStatus(ctx context.Context, purchaseToken, orderID string) (WebhookStatus, error) {
	var out envelope[struct {
		Status string `json:"status"`
	}]
	r := c.http.R().SetContext(ctx).SetResult(&out).SetBody(map[string]any{
		"signedTransaction": purchaseToken,
		"platformTxId":      orderID,
		"environment":       c.cfg.Environment,
	})
	if err := c.do("webhook status", r, resty.MethodPost, c.app("/events/webhook-result/android")); err != nil {
		return "", err
	}
	return parseWebhookStatus(strings.ToLower(out.Data.Status))
}

func (c *HTTPClient) RequestTransferOwnership(ctx context.Context, customerID string, purchaseTokens []string) (string, error) {
	var out envelope[struct {
		ID string `json:"id"`
	}]
	r := c.http.R().SetContext(ctx).SetResult(&out).SetBody(map[string]any{
		"customerId":   customerID,
		"transactions": purchaseTokens,
	})
	if err := c.do("transfer ownership", r, resty.MethodPost, c.app("/customer-transfer-ownerships/request/android")); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("ledgerapi: transfer ownership: %w", parseErr("id", "empty"))
	}
	return out.Data.ID, nil
}

func (c *HTTPClient) TransferStatus(ctx context.Context, requestID string) (TransferStatus, error) {
	var out envelope[struct {
		Status string `json:"status"`
	}]
	r := c.http.R().SetContext(ctx).SetResult(&out)
	if err := c.do("transfer status", r, resty.MethodGet, c.app("/customer-transfer-ownerships/"+requestID+"/status")); err != nil {
		return "", err
	}
	return parseTransferStatus(strings.ToLower(out.Data.Status))
}

func (c *HTTPClient) IsForwardingEnabled(ctx context.Context, externalRef string) (bool, error) {
	var out envelope[struct {
		Enable bool `json:"enable"`
	}]
	r := c.http.R().SetContext(ctx).SetResult(&out).
		SetQueryParam("environment", string(c.cfg.Environment)).
		SetQueryParam("platform", string(types.PlatformAndroid))
	if externalRef != "" {
		r.SetQueryParam("externalRef", externalRef)
	}
	if err := c.do("forwarding", r, resty.MethodGet, c.app("/customers/is-forwarding-enable")); err != nil {
		return false, err
	}
	return out.Data.Enable, nil
}

func (c *HTTPClient) UploadDiagnostics(ctx context.Context, upload DiagnosticsUpload) error {
	form := map[string]string{
		"platform":                string(types.PlatformAndroid),
		"deviceInstallIdentifier": upload.InstallIdentifier,
	}
	if upload.CustomerID != "" {
		form["customerId"] = upload.CustomerID
	}
	r := c.http.R().SetContext(ctx).
		SetFormData(form).
		SetFileReader("logFile", upload.FileName, bytes.NewReader(upload.Content))
	return c.do("upload diagnostics", r, resty.MethodPost, c.app("/monitoring/upload"))
}
