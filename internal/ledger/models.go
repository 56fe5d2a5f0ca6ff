package ledger

// User is the persistent ledger entity consumed by the fulfillment layer.
//
// Referrals is monotonically non-decreasing except for reconciliation.
// HasGift is the one-shot gift flag: it flips to true only via a
// successful redemption and back to false only via an explicit claim
// acknowledgement.
type User struct {
	TelegramID   int64
	ReferredBy   *int64
	Referrals    int
	ItemsJSON    string
	SteamProfile *string
	TradeLink    *string
	HasGift      bool
	GiftItem     *string
}

// Profile is the read model served to the storefront.
type Profile struct {
	Referrals    int      `json:"referrals"`
	Items        []string `json:"items"`
	SteamProfile *string  `json:"steam_profile"`
	TradeLink    *string  `json:"trade_link"`
	HasGift      bool     `json:"has_gift"`
}
