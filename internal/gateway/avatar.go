package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const (
	avatarSize         = 50
	maxAvatarBodyBytes = 1 << 20
)

// AvatarLoader loads an owner avatar for embedding into a rendered card.
type AvatarLoader interface {
	LoadAvatar(ctx context.Context, avatarURL string) (string, error)
}

// HTTPAvatarLoader downloads avatars and returns them as data URIs.
type HTTPAvatarLoader struct {
	httpClient *http.Client
}

// NewHTTPAvatarLoader creates an HTTPAvatarLoader.
func NewHTTPAvatarLoader(httpClient *http.Client) *HTTPAvatarLoader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPAvatarLoader{httpClient: httpClient}
}

// LoadAvatar fetches the avatar at a 50px size and encodes it as a base64 data URI.
func (l *HTTPAvatarLoader) LoadAvatar(ctx context.Context, avatarURL string) (string, error) {
	u, err := url.Parse(avatarURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse avatar URL: %w", err)
	}
	q := u.Query()
	q.Set("s", strconv.Itoa(avatarSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build avatar request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("avatar fetch failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read avatar body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}
