package fulfill

import (
	"net/url"
	"strings"
)

const tradePathPrefix = "/tradeoffer/new/"

var allowedHosts = map[string]bool{
	"steamcommunity.com":     true,
	"www.steamcommunity.com": true,
}

// TradeParams are the two opaque tokens parsed out of a trade destination
// string, passed through to the upstream submission verbatim.
type TradeParams struct {
	Partner string
	Token   string
}

// ParseTradeLink validates and parses a Steam trade offer URL. The host
// must be the marketplace partner domain, partner must be numeric, and
// token may contain letters, digits, '_', '-' and '+'.
func ParseTradeLink(raw string) (TradeParams, error) {
	if raw == "" {
		return TradeParams{}, ErrInvalidTradeLink
	}

	// PathUnescape, not QueryUnescape: '+' is a legal token character
	// and must not decode to a space.
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return TradeParams{}, ErrInvalidTradeLink
	}

	if !allowedHosts[strings.ToLower(parsed.Hostname())] {
		return TradeParams{}, ErrInvalidTradeLink
	}
	if !strings.HasPrefix(parsed.Path, tradePathPrefix) {
		return TradeParams{}, ErrInvalidTradeLink
	}

	partner, token := queryParams(parsed.RawQuery)

	if partner == "" || token == "" {
		return TradeParams{}, ErrInvalidTradeLink
	}
	if !isDigits(partner) {
		return TradeParams{}, ErrInvalidTradeLink
	}
	if !isTokenChars(token) {
		return TradeParams{}, ErrInvalidTradeLink
	}

	return TradeParams{Partner: partner, Token: token}, nil
}

// queryParams extracts partner and token from the raw query string.
// url.ParseQuery is unsuitable here: it decodes '+' to a space, and '+'
// is a legal token character.
func queryParams(rawQuery string) (partner, token string) {
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		switch key {
		case "partner":
			partner = value
		case "token":
			token = value
		}
	}
	return partner, token
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isTokenChars(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-' || c == '+':
		default:
			return false
		}
	}
	return true
}
