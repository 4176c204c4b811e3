package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const minRoomPasswordLength = 4

// HashRoomPassword returns the hex sha256 digest stored for room passwords.
func HashRoomPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// MatchRoomPassword checks input against a stored room password. Older rooms
// hold the raw password instead of its digest; those still match, and
// upgrade reports that the stored value should be replaced by the digest.
//
// The raw comparison also accepts the digest itself as input. A stored value
// that is already a digest is never reported for upgrade, otherwise it would
// be hashed twice and the real password would stop matching.
func MatchRoomPassword(stored, input string) (ok, upgrade bool) {
	hashed := HashRoomPassword(input)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(hashed)) == 1 {
		return true, false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(input)) == 1 {
		return true, !isDigest(stored)
	}
	return false, false
}

func isDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
