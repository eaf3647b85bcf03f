package utils

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

var (
	markupTag  = regexp.MustCompile(`<[^>]*>`)
	markupChar = regexp.MustCompile(`[<>'"]`)
)

// ClientIP resolves the submitting client address: the first X-Forwarded-For
// hop, then X-Real-IP, then the transport peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SanitizeText strips markup-looking tags and quote/angle characters.
// It is regex based and not a full HTML sanitizer.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = markupTag.ReplaceAllString(text, "")
	text = markupChar.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
