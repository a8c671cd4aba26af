package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPClient TronGrid HTTP API 封装，所有请求经过熔断器
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "trongrid",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("TronGrid 熔断器状态变化",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// AccountTransactionsResponse /v1/accounts/{addr}/transactions 的响应
type AccountTransactionsResponse struct {
	Success bool                `json:"success"`
	Data    []TransactionRecord `json:"data"`
	Meta    struct {
		At          int64  `json:"at"`
		Fingerprint string `json:"fingerprint"`
		PageSize    int    `json:"page_size"`
	} `json:"meta"`
}

type TransactionRecord struct {
	TxID        string `json:"txID"`
	BlockNumber int64  `json:"blockNumber"`
	Ret         []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
	RawData struct {
		Contract []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value struct {
					OwnerAddress    string `json:"owner_address"`
					ContractAddress string `json:"contract_address"`
					Data            string `json:"data"`
				} `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
}

// TransactionInfo /wallet/gettransactioninfobyid 的响应
type TransactionInfo struct {
	ID          string   `json:"id"`
	BlockNumber int64    `json:"blockNumber"`
	Log         []LogRec `json:"log"`
	Receipt     struct {
		Result string `json:"result"`
	} `json:"receipt"`
}

// LogRec 地址是不带 41 前缀的 20 字节 hex
type LogRec struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type blockResponse struct {
	BlockID     string `json:"blockID"`
	BlockHeader struct {
		RawData struct {
			Number int64 `json:"number"`
		} `json:"raw_data"`
	} `json:"block_header"`
}

// GetAccountTransactions 分页获取账户交易，fingerprint 为空表示第一页
func (c *HTTPClient) GetAccountTransactions(ctx context.Context, address string, limit int, fingerprint string) (*AccountTransactionsResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("only_to", "true")
	q.Set("order_by", "block_timestamp,desc")
	if fingerprint != "" {
		q.Set("fingerprint", fingerprint)
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions?%s", c.baseURL, address, q.Encode())

	var result AccountTransactionsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("trongrid returned success=false for %s", address)
	}
	return &result, nil
}

func (c *HTTPClient) GetTransactionInfo(ctx context.Context, txID string) (*TransactionInfo, error) {
	var info TransactionInfo
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/wallet/gettransactioninfobyid", map[string]string{"value": txID}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) GetNowBlock(ctx context.Context) (int64, error) {
	var b blockResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/wallet/getnowblock", struct{}{}, &b); err != nil {
		return 0, err
	}
	return b.BlockHeader.RawData.Number, nil
}

func (c *HTTPClient) GetBlockID(ctx context.Context, num int64) (string, error) {
	var b blockResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/wallet/getblockbynum", map[string]int64{"num": num}, &b); err != nil {
		return "", err
	}
	return b.BlockID, nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(msg))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
