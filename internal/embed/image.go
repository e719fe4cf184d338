package embed

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"artemis-proxy/internal/resilience"
)

const maxImageBytes = 10 << 20

// fetchImage resolves a data: URI or downloads an http(s) URL.
func (s *Service) fetchImage(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:") {
		_, encoded, _ := strings.Cut(src, ",")
		data, ok := decodeBase64(encoded)
		if !ok {
			return nil, invalid("image data URI is not valid base64")
		}
		return data, nil
	}

	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, invalid("image (url or data:) required")
	}

	var data []byte
	err = resilience.Retry(ctx, 3, s.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := s.images.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("fetch image failed: %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resilience.Permanent(fmt.Errorf("fetch image failed: %d", resp.StatusCode))
		}

		data, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return err
		}
		if len(data) > maxImageBytes {
			return resilience.Permanent(fmt.Errorf("fetch image failed: larger than %d bytes", maxImageBytes))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// decodeBase64 accepts padded or unpadded input in the standard or URL-safe
// alphabet.
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, true
		}
	}
	return nil, false
}
