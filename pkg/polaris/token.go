package polaris

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenPath is the OAuth2 token endpoint relative to the service root.
const TokenPath = "/api/catalog/v1/oauth/tokens"

// Credentials are the client-credentials grant inputs.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// FetchToken exchanges client credentials for a bearer token. The request
// is form-encoded with the id and secret in the body. Only the presence of
// an access token is checked; its format is not validated.
func (c *Client) FetchToken(ctx context.Context, creds Credentials) (string, error) {
	tokenURL := c.baseURL + TokenPath
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       strings.Fields(creds.Scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	c.logger.V(1).Info("requesting access token", "url", tokenURL, "clientID", creds.ClientID)

	hc := *c.httpClient
	rec := &bodyRecorder{base: hc.Transport}
	hc.Transport = rec

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &hc)
	tok, err := cc.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return "", &StatusError{
				Method:     http.MethodPost,
				URL:        tokenURL,
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       strings.TrimSpace(string(retrieveErr.Body)),
			}
		}
		if body := strings.TrimSpace(string(rec.body)); body != "" {
			return "", fmt.Errorf("token response from %s unusable: %w\n%s", tokenURL, err, body)
		}
		return "", fmt.Errorf("token response from %s unusable: %w", tokenURL, err)
	}
	return tok.AccessToken, nil
}

// bodyRecorder keeps a copy of the last response body it passed through.
type bodyRecorder struct {
	base http.RoundTripper
	body []byte
}

func (b *bodyRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := b.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	b.body = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}
