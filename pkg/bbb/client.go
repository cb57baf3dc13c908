package bbb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conference-balancer/pkg/models"
)

const (
	returnCodeSuccess = "SUCCESS"
	messageNoMeetings = "noMeetings"

	// Responses larger than this are treated as malformed.
	maxResponseBytes = 16 << 20
)

type getMeetingsResponse struct {
	XMLName    xml.Name  `xml:"response"`
	ReturnCode string    `xml:"returncode"`
	MessageKey string    `xml:"messageKey"`
	Message    string    `xml:"message"`
	Meetings   []Meeting `xml:"meetings>meeting"`
}

// HTTPClient is the production Client. It signs each call with the
// server's shared secret.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient returns a client whose requests never outlive timeout.
// A zero timeout defaults to 10 seconds.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *HTTPClient) GetMeetings(ctx context.Context, server models.Server) ([]Meeting, error) {
	endpoint := buildURL(server.BaseURL, server.Secret, "getMeetings", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, server.BaseURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read of response body failed: %w", err)
	}

	return parseGetMeetings(body)
}

func parseGetMeetings(body []byte) ([]Meeting, error) {
	var parsed getMeetingsResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed getMeetings response: %w", err)
	}

	if parsed.ReturnCode != returnCodeSuccess {
		return nil, fmt.Errorf("%w: %s (%s)", ErrRequestFailed, parsed.MessageKey, parsed.Message)
	}
	if parsed.MessageKey == messageNoMeetings {
		return []Meeting{}, nil
	}
	for _, m := range parsed.Meetings {
		if m.MeetingID == "" {
			return nil, fmt.Errorf("malformed getMeetings response: meeting without id")
		}
	}
	return parsed.Meetings, nil
}

// buildURL returns <base>api/<call>?<query>&checksum=<sha1(call+query+secret)>.
func buildURL(baseURL, secret, call, query string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	sum := sha1.Sum([]byte(call + query + secret))
	checksum := hex.EncodeToString(sum[:])

	if query == "" {
		return fmt.Sprintf("%sapi/%s?checksum=%s", baseURL, call, checksum)
	}
	return fmt.Sprintf("%sapi/%s?%s&checksum=%s", baseURL, call, query, checksum)
}
