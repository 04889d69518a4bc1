package state

import (
	"encoding/hex"
	"strings"
)

var (
	forwarderNoncePrefix   = []byte("forwarder/nonce/")
	forwarderTrustPrefix   = []byte("forwarder/trusted/")
	sponsorCreditPrefix    = []byte("sponsor/credit/")
	sponsorTokenPrefix     = []byte("sponsor/token/")
	sponsorTargetPrefix    = []byte("sponsor/target/")
	sponsorEligiblePrefix  = []byte("sponsor/eligible/")
	sponsorPoolKey         = []byte("sponsor/pool")
	sponsorTokenHeldPrefix = []byte("sponsor/held/")
	sponsorModeKey         = []byte("sponsor/mode")
	ownerKey               = []byte("meta/owner")
)

func addressKey(prefix []byte, addr []byte) []byte {
	encoded := hex.EncodeToString(addr)
	buf := make([]byte, len(prefix)+len(encoded))
	copy(buf, prefix)
	copy(buf[len(prefix):], encoded)
	return buf
}

// NormalizeTokenID canonicalises token identifiers for consistent lookups.
func NormalizeTokenID(tokenID string) string {
	return strings.ToUpper(strings.TrimSpace(tokenID))
}

func tokenKey(prefix []byte, addr []byte, tokenID string) []byte {
	encoded := hex.EncodeToString(addr)
	token := NormalizeTokenID(tokenID)
	buf := make([]byte, 0, len(prefix)+len(encoded)+1+len(token))
	buf = append(buf, prefix...)
	buf = append(buf, encoded...)
	buf = append(buf, '/')
	buf = append(buf, token...)
	return buf
}

func tokenIDKey(prefix []byte, tokenID string) []byte {
	token := NormalizeTokenID(tokenID)
	buf := make([]byte, 0, len(prefix)+len(token))
	buf = append(buf, prefix...)
	buf = append(buf, token...)
	return buf
}
