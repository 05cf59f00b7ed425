package instagram

import (
	"net/http"
	"time"

	errs "igarchive/pkg/errors"
	"igarchive/pkg/session"
)

// NewTokenRefresher returns a RefreshFunc that loads the story API's
// landing page and harvests the token pair it hands out via Set-Cookie.
// The upstream issues fresh anonymous tokens to any browser-looking
// visitor, so a plain page load is enough to recover from expiry.
func NewTokenRefresher(storyAPI, userAgent string, timeout time.Duration) session.RefreshFunc {
	client := &http.Client{Timeout: timeout}

	return func() (*session.Tokens, error) {
		req, err := http.NewRequest(http.MethodGet, storyAPI, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := client.Do(req)
		if err != nil {
			return nil, errs.New(errs.ErrorTypeTransport, "token refresh request failed: %v", err)
		}
		defer resp.Body.Close()

		var tokens session.Tokens
		for _, cookie := range resp.Cookies() {
			switch cookie.Name {
			case "access-token":
				tokens.Access = cookie.Value
			case "refresh-token":
				tokens.Refresh = cookie.Value
			}
		}
		if tokens.Access == "" || tokens.Refresh == "" {
			return nil, errs.NewWithCode(errs.ErrorTypeAuthExpired, resp.StatusCode,
				"upstream did not issue new session tokens")
		}
		return &tokens, nil
	}
}
