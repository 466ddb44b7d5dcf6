package payments

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// The gateway's integrity scheme: uppercased MD5 over the concatenated
// fields, with the shared secret pre-hashed the same way. Amounts are
// always formatted with two decimals.

func FormatAmount(cents int) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// CheckoutHash signs the outgoing checkout descriptor.
func CheckoutHash(merchantID, orderID string, amountCents int, currency, secret string) string {
	return md5Upper(merchantID + orderID + FormatAmount(amountCents) + currency + md5Upper(secret))
}

// NotifyHash recomputes the signature for a gateway callback from the
// callback's own fields. amount and statusCode are taken verbatim from the
// callback body, not from local state.
func NotifyHash(merchantID, orderID, amount, currency, statusCode, secret string) string {
	return md5Upper(merchantID + orderID + amount + currency + statusCode + md5Upper(secret))
}

// VerifyNotify compares in constant time. Fail closed: any mismatch means
// the callback is discarded untrusted.
func VerifyNotify(merchantID, orderID, amount, currency, statusCode, secret, supplied string) bool {
	want := NotifyHash(merchantID, orderID, amount, currency, statusCode, secret)
	got := strings.ToUpper(strings.TrimSpace(supplied))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
