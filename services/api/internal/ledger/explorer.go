package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/veridion/carbon-market/services/api/internal/domain"
)

const defaultRequestTimeout = 15 * time.Second

// ExplorerClient implements Lookup against an etherscan-compatible token
// transfer endpoint.
type ExplorerClient struct {
	baseURL          string
	apiKey           string
	minConfirmations int
	httpClient       *http.Client
}

func NewExplorerClient(baseURL, apiKey string, minConfirmations int, httpClient *http.Client) *ExplorerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &ExplorerClient{
		baseURL:          baseURL,
		apiKey:           apiKey,
		minConfirmations: minConfirmations,
		httpClient:       httpClient,
	}
}

type explorerResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Result  []explorerTransfer `json:"result"`
}

type explorerTransfer struct {
	Hash          string `json:"hash"`
	To            string `json:"to"`
	Value         string `json:"value"`
	TokenSymbol   string `json:"tokenSymbol"`
	TokenDecimal  string `json:"tokenDecimal"`
	Confirmations string `json:"confirmations"`
	TimeStamp     string `json:"timeStamp"`
}

// FindTransfer lists recent inbound transfers for recipient and returns the
// first whose amount equals the expected amount exactly. Amount comparison
// has zero tolerance; address comparison is case-insensitive.
func (c *ExplorerClient) FindTransfer(ctx context.Context, recipient string, amount decimal.Decimal, token string) (*domain.LedgerTransfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("address", recipient)
	q.Set("sort", "desc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build explorer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var body explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}

	// Etherscan-style APIs signal an empty result set through status "0".
	if body.Status != "1" {
		if strings.Contains(body.Message, "No transactions") {
			return nil, nil
		}
		return nil, fmt.Errorf("explorer error: %s", body.Message)
	}

	for _, tr := range body.Result {
		match, err := c.matches(tr, recipient, amount, token)
		if err != nil {
			return nil, err
		}
		if match == nil {
			continue
		}
		return match, nil
	}
	return nil, nil
}

func (c *ExplorerClient) matches(tr explorerTransfer, recipient string, amount decimal.Decimal, token string) (*domain.LedgerTransfer, error) {
	if !strings.EqualFold(tr.TokenSymbol, token) {
		return nil, nil
	}
	if !sameAddress(tr.To, recipient) {
		return nil, nil
	}

	tokenDecimals, err := strconv.Atoi(tr.TokenDecimal)
	if err != nil {
		return nil, fmt.Errorf("transfer %s: bad tokenDecimal %q", tr.Hash, tr.TokenDecimal)
	}
	raw, err := decimal.NewFromString(tr.Value)
	if err != nil {
		return nil, fmt.Errorf("transfer %s: bad value %q", tr.Hash, tr.Value)
	}
	observed := raw.Shift(int32(-tokenDecimals))
	if !observed.Equal(amount) {
		return nil, nil
	}

	confirmations, err := strconv.Atoi(tr.Confirmations)
	if err != nil {
		return nil, fmt.Errorf("transfer %s: bad confirmations %q", tr.Hash, tr.Confirmations)
	}
	if confirmations < c.minConfirmations {
		return nil, nil
	}

	observedAt := time.Time{}
	if secs, err := strconv.ParseInt(tr.TimeStamp, 10, 64); err == nil {
		observedAt = time.Unix(secs, 0).UTC()
	}

	return &domain.LedgerTransfer{
		TxID:          tr.Hash,
		Amount:        observed,
		Recipient:     tr.To,
		ObservedAt:    observedAt,
		Confirmations: confirmations,
	}, nil
}

func sameAddress(a, b string) bool {
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}
