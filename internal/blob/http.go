package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPStore implements Store against a token-authorized REST blob API:
//
//	GET {apiURL}?pathname={key}  -> 200 {"url": "...", "pathname": "..."} | 404
//	PUT {apiURL}/{key}           -> 200 {"url": "...", "pathname": "..."}
//	GET {url}                    -> blob content (public read)
//
// Writes carry "Authorization: Bearer <token>", x-access, x-allow-overwrite and
// x-add-random-suffix: 0 so the pathname stays fixed.
type HTTPStore struct {
	apiURL string
	token  string // used for metadata lookups; Put uses PutOptions.Token when set
	client *http.Client
}

type blobMeta struct {
	URL      string `json:"url"`
	Pathname string `json:"pathname"`
}

// NewHTTPStore creates an HTTPStore. client may be nil to use http.DefaultClient.
func NewHTTPStore(apiURL, token string, client *http.Client) (*HTTPStore, error) {
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid blob API URL %q", apiURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		client: client,
	}, nil
}

func (s *HTTPStore) authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Get implements Store.Get.
func (s *HTTPStore) Get(ctx context.Context, key string) (Ref, error) {
	u, err := url.Parse(s.apiURL)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid blob API URL: %w", err)
	}
	q := u.Query()
	q.Set("pathname", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Ref{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	s.authorize(req, s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return Ref{}, fmt.Errorf("blob head request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp, key); err != nil {
		return Ref{}, err
	}
	var meta blobMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Ref{}, fmt.Errorf("parse blob metadata: %w", err)
	}
	if meta.URL == "" {
		return Ref{}, fmt.Errorf("%w: %s has no url", ErrNotFound, key)
	}
	return Ref{Key: key, URL: meta.URL}, nil
}

// Read implements Store.Read. Blobs are public, so no credentials are sent.
func (s *HTTPStore) Read(ctx context.Context, ref Ref) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob read failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp, ref.Key); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob body: %w", err)
	}
	return body, nil
}

// Put implements Store.Put.
func (s *HTTPStore) Put(ctx context.Context, key string, content []byte, opts PutOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.apiURL+"/"+url.PathEscape(key), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	token := opts.Token
	if token == "" {
		token = s.token
	}
	s.authorize(req, token)
	access := opts.Access
	if access == "" {
		access = AccessPublic
	}
	req.Header.Set("x-access", string(access))
	req.Header.Set("x-add-random-suffix", "0")
	if opts.AllowOverwrite {
		req.Header.Set("x-allow-overwrite", "1")
	}
	if opts.ContentType != "" {
		req.Header.Set("x-content-type", opts.ContentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("blob put failed: %w", err)
	}
	defer resp.Body.Close()
	return statusError(resp, key)
}

func statusError(resp *http.Response, key string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrExists, key)
	default:
		return fmt.Errorf("blob store: HTTP %d", resp.StatusCode)
	}
}
