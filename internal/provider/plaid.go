package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/plaid/plaid-go/v29/plaid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Plaid error codes that mean the item cannot be synced incrementally yet.
var syncUnsupportedCodes = map[string]bool{
	"PRODUCT_NOT_READY":           true,
	"PRODUCTS_NOT_SUPPORTED":      true,
	"INVALID_PRODUCT":             true,
	"ADDITIONAL_CONSENT_REQUIRED": true,
	"INVALID_CURSOR":              true,
}

const mutationDuringPaginationCode = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"

// PlaidConfig holds the settings for NewPlaidClient.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string  // sandbox, development or production
	RateLimit   float64 // requests per second, 0 disables throttling
}

// PlaidClient is the concrete implementation of Source backed by the Plaid API.
type PlaidClient struct {
	client  *plaid.APIClient
	limiter *rate.Limiter
}

// NewPlaidClient creates a new PlaidClient for the configured environment.
func NewPlaidClient(cfg PlaidConfig) (*PlaidClient, error) {
	env, err := plaidEnvironment(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("NewPlaidClient: %w", err)
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	configuration.UseEnvironment(env)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &PlaidClient{
		client:  plaid.NewAPIClient(configuration),
		limiter: limiter,
	}, nil
}

func plaidEnvironment(name string) (plaid.Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sandbox":
		return plaid.Sandbox, nil
	case "production":
		return plaid.Production, nil
	}
	return "", fmt.Errorf("unknown plaid environment %q", name)
}

// Sync implements Source using /transactions/sync.
func (c *PlaidClient) Sync(ctx context.Context, cred domain.Credential, cursor domain.Cursor, count int) (*domain.SyncBatch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("Sync: rate limiter: %w", err)
	}

	request := plaid.NewTransactionsSyncRequest(cred.AccessToken)
	// An absent cursor is omitted entirely; Plaid reads that as "from the beginning".
	if cursor.Valid {
		request.SetCursor(cursor.Token)
	}
	if count > 0 {
		request.SetCount(int32(count))
	}

	resp, _, err := c.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", classifyPlaidError(err))
	}

	batch := &domain.SyncBatch{
		HasMore:    resp.GetHasMore(),
		NextCursor: resp.GetNextCursor(),
	}
	for _, tx := range resp.GetAdded() {
		batch.Added = append(batch.Added, recordFromPlaid(tx))
	}
	for _, tx := range resp.GetModified() {
		batch.Modified = append(batch.Modified, recordFromPlaid(tx))
	}
	for _, removed := range resp.GetRemoved() {
		batch.Removed = append(batch.Removed, removed.GetTransactionId())
	}

	return batch, nil
}

// Get implements Source using /transactions/get.
func (c *PlaidClient) Get(ctx context.Context, cred domain.Credential, req GetRequest) (*GetPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("Get: rate limiter: %w", err)
	}

	options := plaid.TransactionsGetRequestOptions{}
	options.SetCount(int32(req.Count))
	options.SetOffset(int32(req.Offset))
	if len(req.AccountIDs) > 0 {
		options.SetAccountIds(req.AccountIDs)
	}

	request := plaid.NewTransactionsGetRequest(cred.AccessToken, req.Window.Start.String(), req.Window.End.String())
	request.SetOptions(options)

	resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	if err != nil {
		return nil, fmt.Errorf("Get: %w", classifyPlaidError(err))
	}

	page := &GetPage{Total: int(resp.GetTotalTransactions())}
	for _, tx := range resp.GetTransactions() {
		page.Transactions = append(page.Transactions, recordFromPlaid(tx))
	}

	return page, nil
}

// recordFromPlaid maps a Plaid transaction into the domain record. A date the
// provider sent in an unexpected shape is left zero; the normalizer rejects it.
func recordFromPlaid(tx plaid.Transaction) domain.TransactionRecord {
	date, _ := civil.ParseDate(tx.GetDate())

	currency := tx.GetIsoCurrencyCode()
	if currency == "" {
		currency = tx.GetUnofficialCurrencyCode()
	}

	return domain.TransactionRecord{
		ID:          tx.GetTransactionId(),
		AccountID:   tx.GetAccountId(),
		Date:        date,
		Description: tx.GetName(),
		Amount:      decimal.NewFromFloat(tx.GetAmount()),
		Currency:    currency,
		Category:    tx.GetCategory(),
		Merchant:    tx.GetMerchantName(),
		Pending:     tx.GetPending(),
	}
}

// classifyPlaidError turns an SDK error into one of the sentinel conditions
// of Source, or a transient fetch RunError.
func classifyPlaidError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewRunError(domain.KindTransientFetch, "plaid", err)
	}

	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return domain.NewRunError(domain.KindTransientFetch, "plaid", err)
	}

	return classifyErrorCode(string(plaidErr.ErrorType), plaidErr.ErrorCode, plaidErr.ErrorMessage)
}

func classifyErrorCode(errorType, errorCode, message string) error {
	detail := fmt.Errorf("%s/%s: %s", errorType, errorCode, message)

	switch {
	case errorCode == mutationDuringPaginationCode:
		return fmt.Errorf("%w: %v", domain.ErrMutationDuringPagination, detail)
	case syncUnsupportedCodes[errorCode]:
		return fmt.Errorf("%w: %v", domain.ErrSyncUnsupported, detail)
	}
	return domain.NewRunError(domain.KindTransientFetch, "plaid", detail)
}
