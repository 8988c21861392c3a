package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://viacep.com.br"
	defaultTimeout = 5 * time.Second
)

var (
	ErrInvalidZip        = errors.New("zip code must have 8 digits")
	ErrZipNotFound       = errors.New("zip code not found")
	ErrLookupUnavailable = errors.New("address lookup unavailable")
)

// Address is the subset of a postal lookup used to prefill a form.
type Address struct {
	Zip          string
	State        string
	City         string
	Street       string
	Neighborhood string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a ViaCEP client. An empty baseURL or a nil httpClient
// fall back to the public service and a 5s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type viaCEPResponse struct {
	CEP        string `json:"cep"`
	UF         string `json:"uf"`
	Localidade string `json:"localidade"`
	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Erro       any    `json:"erro"`
}

// Lookup resolves a zip code. On any failure it returns an empty Address so
// callers can leave the fields blank.
func (c *Client) Lookup(ctx context.Context, zip string) (Address, error) {
	digits := NormalizeZip(zip)
	if len(digits) != 8 {
		return Address{}, ErrInvalidZip
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/ws/%s/json/", c.baseURL, digits), nil)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return Address{}, ErrInvalidZip
	case resp.StatusCode != http.StatusOK:
		return Address{}, fmt.Errorf("%w: status %d", ErrLookupUnavailable, resp.StatusCode)
	}

	var body viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Address{}, fmt.Errorf("%w: decode: %v", ErrLookupUnavailable, err)
	}
	// the service reports "erro": true, or "erro": "true" on newer versions
	if body.Erro != nil && body.Erro != false && body.Erro != "false" {
		return Address{}, ErrZipNotFound
	}

	return Address{
		Zip:          digits,
		State:        body.UF,
		City:         body.Localidade,
		Street:       body.Logradouro,
		Neighborhood: body.Bairro,
	}, nil
}

// NormalizeZip strips everything but digits.
func NormalizeZip(zip string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, zip)
}
