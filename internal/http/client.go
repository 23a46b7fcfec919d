package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const requestTimeout = time.Second * 30

// RelayerClient provides high level methods to work with the relayer control plane api
type RelayerClient struct {
	host   *url.URL
	client http.Client
}

// NewRelayerClient takes a host as a single argument and returns a RelayerClient in case of well formatted host arg
// host format is <scheme>://<host>[:<port>], e.g. http://relayer.host, http://relayer.host:9999
func NewRelayerClient(host string) (*RelayerClient, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("host parsing error: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("host must be in <scheme>://<host>[:<port>] format, got %q", host)
	}

	u.Path = ""
	u.RawQuery = ""
	return &RelayerClient{
		host: u,
		client: http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

// RetryMessages asks every operation queue to retry the messages matching pattern now.
func (c RelayerClient) RetryMessages(pattern relay.MatchingList) (*MessageRetryResponse, error) {
	var res MessageRetryResponse
	if err := c.do(http.MethodPost, MessageRetry, pattern, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c RelayerClient) SendMessages(req MessagesRequest) ([]EnqueueResult, error) {
	res := make([]EnqueueResult, 0, len(req.Messages))
	if err := c.do(http.MethodPost, Messages, req, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c RelayerClient) PayloadStatus(id uuid.UUID) (*PayloadStatusResponse, error) {
	var res PayloadStatusResponse
	path := strings.Replace(PayloadStatus, "{uuid}", id.String(), 1)
	if err := c.do(http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c RelayerClient) do(method, path string, body, out interface{}) error {
	u := *c.host
	u.Path = path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build http request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make http request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("got unexpected http response status code: %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
