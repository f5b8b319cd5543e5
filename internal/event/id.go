package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ID computes the deterministic event id: sha256 over the identity
// tuple. The material is NFC-normalized first so that job names pasted
// from markdown with decomposed accents hash identically regardless of
// which source observed them.
func ID(runKey string, typ Type, atMs int64, source, sourceOffset string) string {
	material := fmt.Sprintf("%s|%s|%d|%s|%s", runKey, typ, atMs, source, sourceOffset)
	sum := sha256.Sum256([]byte(norm.NFC.String(material)))
	return hex.EncodeToString(sum[:])
}

// BucketMs floors atMs to a coarse bucket. Heartbeat event ids are
// computed over the bucketed timestamp so repeated polls of a
// fast-updating heartbeat collapse to one journal entry per bucket.
func BucketMs(atMs, bucketMs int64) int64 {
	if bucketMs <= 0 {
		return atMs
	}
	return atMs - atMs%bucketMs
}
