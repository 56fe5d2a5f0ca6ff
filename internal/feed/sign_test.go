package feed

import "testing"

func TestSignGoldenValue(t *testing.T) {
	params := map[string]string{
		"product":   "AK47",
		"partner":   "123",
		"token":     "abc",
		"max_price": "100",
		"custom_id": "x",
	}

	// HMAC-SHA256("custom_id:x;max_price:100;partner:123;product:AK47;token:abc", "test-secret")
	const want = "a31fa4dc4a9b1146ee99ab81e16009ed8b2724fd616af27bcc5e8f559de9c5f2"
	if got := Sign(params, "test-secret"); got != want {
		t.Fatalf("signature mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestSignDeterministic(t *testing.T) {
	params := map[string]string{
		"product":   "AK47",
		"partner":   "123",
		"token":     "abc",
		"max_price": "100",
		"custom_id": "x",
	}

	first := Sign(params, "secret")
	for i := 0; i < 10; i++ {
		if got := Sign(params, "secret"); got != first {
			t.Fatal("signature must be stable across invocations")
		}
	}
}

func TestSignSkipsEmptyAndSignFields(t *testing.T) {
	base := map[string]string{
		"product": "AK47",
		"partner": "123",
	}
	withNoise := map[string]string{
		"product": "AK47",
		"partner": "123",
		"token":   "",
		"sign":    "bogus",
	}

	if Sign(base, "secret") != Sign(withNoise, "secret") {
		t.Fatal("empty fields and sign itself must not enter the canonical string")
	}
}

func TestSignSecretMatters(t *testing.T) {
	params := map[string]string{"product": "AK47"}
	if Sign(params, "one") == Sign(params, "two") {
		t.Fatal("different secrets must produce different signatures")
	}
}
