package confidential

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GatewayClient talks to a confidential-computation relayer over HTTP.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secret     string
}

type gatewayInput struct {
	Handle      common.Hash    `json:"handle"`
	Proof       hexutil.Bytes  `json:"proof"`
	Contract    common.Address `json:"contract"`
	LeagueID    string         `json:"league_id"`
	Participant common.Address `json:"participant"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type valueResponse struct {
	Value uint64 `json:"value"`
}

func NewGatewayClient(baseURL, apiKey, secret string) *GatewayClient {
	return &GatewayClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  secret,
	}
}

func toGatewayInput(in Input) gatewayInput {
	return gatewayInput{
		Handle:      in.Handle,
		Proof:       in.Proof,
		Contract:    in.Contract,
		LeagueID:    in.LeagueID,
		Participant: in.Participant,
	}
}

// signRequest creates the HMAC signature over timestamp, method, path and body
func (c *GatewayClient) signRequest(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *GatewayClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-SIGNATURE", c.signRequest(timestamp, http.MethodPost, path, string(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownHandle
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d - %s", ErrGatewayFailure, resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *GatewayClient) Verify(ctx context.Context, in Input) error {
	var resp verifyResponse
	if err := c.post(ctx, "/v1/verify", toGatewayInput(in), &resp); err != nil {
		return err
	}
	if !resp.Valid {
		if resp.Reason == "range" {
			return ErrWeightRange
		}
		return ErrInvalidProof
	}
	return nil
}

func (c *GatewayClient) Decrypt(ctx context.Context, in Input) (uint64, error) {
	var resp valueResponse
	if err := c.post(ctx, "/v1/decrypt", toGatewayInput(in), &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *GatewayClient) Aggregate(ctx context.Context, ins []Input) (uint64, error) {
	payload := struct {
		Inputs []gatewayInput `json:"inputs"`
	}{Inputs: make([]gatewayInput, 0, len(ins))}
	for _, in := range ins {
		payload.Inputs = append(payload.Inputs, toGatewayInput(in))
	}

	var resp valueResponse
	if err := c.post(ctx, "/v1/aggregate", payload, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}
