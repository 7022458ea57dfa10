package scholar

import (
	"bytes"
	"strings"
)

// blockKeywords are lowercase body fragments that identify a robot wall.
var blockKeywords = [][]byte{
	[]byte("unusual traffic from your computer network"),
	[]byte("our systems have detected unusual traffic"),
	[]byte("please show you're not a robot"),
	[]byte("id=\"gs_captcha_f\""),
	[]byte("g-recaptcha"),
}

// blockSignal inspects a fetched page for robot wall signals. It returns
// a short reason and true when the page is a block rather than results.
func blockSignal(statusCode int, finalURL string, body []byte) (string, bool) {
	switch statusCode {
	case 403:
		return "status 403", true
	case 429:
		return "status 429", true
	}
	if strings.Contains(finalURL, "/sorry/") {
		return "redirected to challenge page", true
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "empty body", true
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range blockKeywords {
		if bytes.Contains(lowerBody, kw) {
			return "robot challenge in body", true
		}
	}
	return "", false
}
