package browser

import (
	"bytes"
	"net/http"
	"strings"
)

// classify decides the page kind from the response and decoded body.
func classify(resp *http.Response, body []byte, zeroMarker string) PageKind {
	if isChallenge(resp, body) {
		return KindCaptcha
	}
	if zeroMarker != "" && bytes.Contains(bytes.ToLower(body), []byte(strings.ToLower(zeroMarker))) {
		return KindZeroResult
	}
	return KindNormal
}

// challengeMarkers identify interstitial challenge pages. A bare "captcha"
// substring is not enough: normal pages load recaptcha scripts.
var challengeMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"captcha-form",
	`name="captcha"`,
	"проверка, что вы не робот",
	"введите символы с картинки",
}

// isChallenge checks a response for anti-bot protection.
func isChallenge(resp *http.Response, body []byte) bool {
	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return true
		}
	}

	lower := strings.ToLower(string(body))
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
