package signalproof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Job statuses reported by signald.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client wraps the HTTP interactions with the signald REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Key identifies one signal. ChainID and Namespace are only read by the
// schemes that include them.
type Key struct {
	Signal    common.Hash    `json:"signal"`
	Sender    common.Address `json:"sender"`
	ChainID   string         `json:"chain_id,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

// DerivedSlot pairs a key with its storage slot.
type DerivedSlot struct {
	Key  Key         `json:"key"`
	Slot common.Hash `json:"slot"`
}

// ProofRequest submits the keys of one account for proving at a single block.
type ProofRequest struct {
	ID      string         `json:"id,omitempty"`
	Account common.Address `json:"account"`
	Scheme  string         `json:"scheme"`
	Keys    []Key          `json:"keys"`
}

// Proof is a storage proof of one signal slot.
type Proof struct {
	BlockNumber  uint64          `json:"blockNumber"`
	BlockHash    common.Hash     `json:"blockHash"`
	StateRoot    common.Hash     `json:"stateRoot"`
	Account      common.Address  `json:"account"`
	Slot         common.Hash     `json:"slot"`
	Value        common.Hash     `json:"value"`
	StorageRoot  common.Hash     `json:"storageRoot"`
	AccountProof []hexutil.Bytes `json:"accountProof"`
	StorageProof []hexutil.Bytes `json:"storageProof"`
}

// ProofJob is the server-side view of a submitted request.
type ProofJob struct {
	ID         string         `json:"id"`
	Account    common.Address `json:"account"`
	Scheme     string         `json:"scheme"`
	Keys       []Key          `json:"keys"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Proofs     []Proof        `json:"proofs,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Done reports whether the job reached a terminal status.
func (j ProofJob) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// JobStats counts jobs by status.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JobList is a page of jobs with the matching counts.
type JobList struct {
	Jobs  []ProofJob `json:"jobs"`
	Stats JobStats   `json:"stats"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("signald api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("signald api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the signald API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = strings.TrimSpace(token)
	c.mu.Unlock()
}

// AccessToken returns the configured bearer token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// DeriveSlots asks the server for the slots of keys under scheme.
func (c *Client) DeriveSlots(ctx context.Context, scheme string, keys []Key) ([]DerivedSlot, error) {
	var resp struct {
		Slots []DerivedSlot `json:"slots"`
	}
	payload := map[string]any{"scheme": scheme, "keys": keys}
	if err := c.post(ctx, "/api/v1/slots", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

// BaseSlot computes the base slot of an arbitrary namespace.
func (c *Client) BaseSlot(ctx context.Context, namespace []byte) (common.Hash, error) {
	var resp struct {
		Slot common.Hash `json:"slot"`
	}
	payload := map[string]string{"namespace_hex": hexutil.Encode(namespace)}
	if err := c.post(ctx, "/api/v1/base-slot", payload, &resp); err != nil {
		return common.Hash{}, err
	}
	return resp.Slot, nil
}

// SubmitProofJob queues a proof request. Resubmitting an ID returns the
// existing job.
func (c *Client) SubmitProofJob(ctx context.Context, req ProofRequest) (ProofJob, error) {
	var job ProofJob
	if err := c.post(ctx, "/api/v1/proofs", req, &job); err != nil {
		return ProofJob{}, err
	}
	return job, nil
}

// GetProofJob fetches a job by identifier.
func (c *Client) GetProofJob(ctx context.Context, id string) (ProofJob, error) {
	var job ProofJob
	if err := c.get(ctx, "/api/v1/proofs/"+url.PathEscape(id), nil, &job); err != nil {
		return ProofJob{}, err
	}
	return job, nil
}

// ListProofJobs lists the most recently updated jobs, optionally filtered by
// status.
func (c *Client) ListProofJobs(ctx context.Context, limit int, statuses ...string) (JobList, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	var list JobList
	if err := c.get(ctx, "/api/v1/proofs", query, &list); err != nil {
		return JobList{}, err
	}
	return list, nil
}

// WaitForProofJob polls until the job is terminal or ctx ends.
func (c *Client) WaitForProofJob(ctx context.Context, id string, interval time.Duration) (ProofJob, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetProofJob(ctx, id)
		if err != nil {
			return ProofJob{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return ProofJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
