package fulfill

import (
	"errors"
	"testing"
)

func TestParseTradeLinkValid(t *testing.T) {
	cases := []struct {
		raw     string
		partner string
		token   string
	}{
		{"https://steamcommunity.com/tradeoffer/new/?partner=59566827&token=CBl2pinD", "59566827", "CBl2pinD"},
		{"https://www.steamcommunity.com/tradeoffer/new/?partner=1&token=a_b-c+d", "1", "a_b-c+d"},
	}

	for _, tc := range cases {
		params, err := ParseTradeLink(tc.raw)
		if err != nil {
			t.Fatalf("ParseTradeLink(%q) failed: %v", tc.raw, err)
		}
		if params.Partner != tc.partner || params.Token != tc.token {
			t.Fatalf("ParseTradeLink(%q) = %+v", tc.raw, params)
		}
	}
}

func TestParseTradeLinkPercentEncodedToken(t *testing.T) {
	// %2B must decode to '+', never to a space.
	params, err := ParseTradeLink("https://steamcommunity.com/tradeoffer/new/?partner=123&token=ab%2Bcd")
	if err != nil {
		t.Fatalf("ParseTradeLink failed: %v", err)
	}
	if params.Token != "ab+cd" {
		t.Fatalf("expected token ab+cd, got %q", params.Token)
	}
}

func TestParseTradeLinkRejections(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"wrong host":         "https://example.com/tradeoffer/new/?partner=123&token=abc",
		"host spoof":         "https://steamcommunity.com.evil.net/tradeoffer/new/?partner=123&token=abc",
		"wrong path":         "https://steamcommunity.com/market/?partner=123&token=abc",
		"missing partner":    "https://steamcommunity.com/tradeoffer/new/?token=abc",
		"missing token":      "https://steamcommunity.com/tradeoffer/new/?partner=123",
		"alpha partner":      "https://steamcommunity.com/tradeoffer/new/?partner=12a3&token=abc",
		"token illegal char": "https://steamcommunity.com/tradeoffer/new/?partner=123&token=ab!cd",
		"not a url":          "definitely not a trade link",
	}

	for name, raw := range cases {
		if _, err := ParseTradeLink(raw); !errors.Is(err, ErrInvalidTradeLink) {
			t.Errorf("%s: expected ErrInvalidTradeLink, got %v", name, err)
		}
	}
}
