package transport

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/imalabs/ima-mcp-go/internal/config"
)

// Accept header values per endpoint.
const (
	AcceptJSON        = "application/json"
	AcceptEventStream = "text/event-stream"
	AcceptAny         = "*/*"
)

// refererPath is appended to the base URL for the refresh call referer.
const refererPath = "/wikis"

// Browser profile captured from the ima.qq.com web client. The upstream
// rejects requests that do not look like its own extension.
const (
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
	acceptLanguage   = "zh-CN,zh;q=0.9,en;q=0.8,en-GB;q=0.7,en-US;q=0.6"
	secChUA          = `"Microsoft Edge";v="141", "Not?A_Brand";v="8", "Chromium";v="141"`
	extensionVersion = "999.999.999"
)

var imaTokenPattern = regexp.MustCompile(`IMA-TOKEN=[^;]+`)

// BuildHeaders assembles the header set for QA and session-init calls.
// When token is non-empty the IMA-TOKEN pair inside x-ima-cookie is
// rewritten (or appended) and a bearer authorization header is added.
//
// Keys are assigned directly so they reach the wire lowercase, matching the
// captured browser profile.
func BuildHeaders(cfg *config.Config, token, accept string) http.Header {
	cookie := cfg.XIMACookie
	if token != "" {
		cookie = rewriteIMAToken(cookie, token)
	}

	h := http.Header{
		"x-ima-cookie":       {cookie},
		"from_browser_ima":   {"1"},
		"extension_version":  {extensionVersion},
		"x-ima-bkn":          {cfg.XIMABkn},
		"user-agent":         {userAgent},
		"accept":             {accept},
		"content-type":       {AcceptJSON},
		"accept-language":    {acceptLanguage},
		"sec-ch-ua":          {secChUA},
		"sec-ch-ua-mobile":   {"?0"},
		"sec-ch-ua-platform": {`"Windows"`},
		"sec-fetch-dest":     {"empty"},
		"sec-fetch-mode":     {"cors"},
		"sec-fetch-site":     {"same-origin"},
	}

	if token != "" {
		h["authorization"] = []string{"Bearer " + token}
	}

	if c := CookieHeader(cfg.Cookies); c != "" {
		h["cookie"] = []string{c}
	}

	return h
}

// RefreshHeaders assembles the header set for token refresh calls. The
// refresh endpoint sees the raw x-ima-cookie without a token rewrite,
// accepts anything, and carries the wikis referer.
func RefreshHeaders(cfg *config.Config, token string) http.Header {
	h := BuildHeaders(cfg, token, AcceptAny)
	h["x-ima-cookie"] = []string{cfg.XIMACookie}
	h["referer"] = []string{cfg.BaseURL + refererPath}

	return h
}

// rewriteIMAToken substitutes the active token into the IMA-TOKEN cookie
// pair, appending one when the header had none.
func rewriteIMAToken(cookie, token string) string {
	replaced := imaTokenPattern.ReplaceAllLiteralString(cookie, "IMA-TOKEN="+token)
	if !strings.Contains(replaced, "IMA-TOKEN=") {
		return replaced + "; IMA-TOKEN=" + token
	}

	return replaced
}

// CookieHeader normalizes a raw browser cookie string into a Cookie header
// value. Pairs are trimmed, fragments without '=' are dropped, and a
// repeated name keeps its first position with its last value.
func CookieHeader(raw string) string {
	if raw == "" {
		return ""
	}

	index := make(map[string]int)
	pairs := make([]string, 0, 8)

	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}

		if at, seen := index[name]; seen {
			pairs[at] = name + "=" + value
			continue
		}

		index[name] = len(pairs)
		pairs = append(pairs, name+"="+value)
	}

	return strings.Join(pairs, "; ")
}
