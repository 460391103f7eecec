package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/bobarin/wellvoice/internal/models"
)

// KeyVersion prefixes every cache key so the scheme can change without
// colliding with rows written by an older one.
const KeyVersion = "v1"

// Fingerprint derives the cache key for a synthesis request. Text is used
// verbatim. Each field is length-prefixed before hashing so no value can
// bleed into its neighbour.
func Fingerprint(text, voiceID string, stability, similarityBoost float64) string {
	// -0 and 0 are the same setting
	if stability == 0 {
		stability = 0
	}
	if similarityBoost == 0 {
		similarityBoost = 0
	}

	h := sha256.New()
	for _, field := range []string{
		text,
		voiceID,
		strconv.FormatFloat(stability, 'g', -1, 64),
		strconv.FormatFloat(similarityBoost, 'g', -1, 64),
	} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return KeyVersion + "_" + hex.EncodeToString(h.Sum(nil))
}

// FingerprintSettings is Fingerprint over a VoiceSettings value.
func FingerprintSettings(text string, s models.VoiceSettings) string {
	return Fingerprint(text, s.VoiceID, s.Stability, s.SimilarityBoost)
}
