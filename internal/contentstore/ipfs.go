package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"certify/pkg/platform/sentinel"
)

// IPFSStore talks to an IPFS node's HTTP RPC API (/api/v0) and serves
// documents through a public gateway.
type IPFSStore struct {
	client     *resty.Client
	gatewayURL string
}

type ipfsAddResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// NewIPFSStore builds a store against apiURL (e.g. http://127.0.0.1:5001).
func NewIPFSStore(apiURL, gatewayURL string, timeout time.Duration) *IPFSStore {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	return &IPFSStore{
		client:     client,
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
	}
}

// Put pins data and returns its CID. Tags are not representable in IPFS and
// are sent only as the multipart file name.
func (s *IPFSStore) Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error) {
	name := "content"
	if n, ok := tags["name"]; ok && n != "" {
		name = n
	}
	var out ipfsAddResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"pin": "true", "cid-version": "1"}).
		SetMultipartField("file", name, contentType, bytes.NewReader(data)).
		SetResult(&out).
		Post("/api/v0/add")
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ipfs add: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}
	return out.Hash, nil
}

func (s *IPFSStore) Get(ctx context.Context, address string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("arg", address).
		Post("/api/v0/cat")
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	case resp.StatusCode() == http.StatusInternalServerError && strings.Contains(resp.String(), "not found"):
		return nil, sentinel.ErrNotFound
	case resp.IsError():
		return nil, fmt.Errorf("ipfs cat: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func (s *IPFSStore) URL(address string) string {
	return s.gatewayURL + "/ipfs/" + address
}
