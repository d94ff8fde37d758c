// Package integrity provides deterministic fingerprints of policies so a
// stored policy can be checked against the one that was explained. All
// functions are pure.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/ashita-ai/xplan/internal/factored"
	"github.com/ashita-ai/xplan/internal/policy"
)

const fingerprintPrefix = "v1:"

// DecisionHash is the SHA-256 hex digest of one (state, action) decision.
// Each field is written as a 4-byte big-endian length followed by its bytes,
// so keys containing separators cannot collide.
func DecisionHash(stateKey, actionKey string) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // keys are short canonical strings
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(stateKey)
	writeField(actionKey)
	return hex.EncodeToString(h.Sum(nil))
}

// PolicyFingerprint is the Merkle root over the decision hashes of p in
// state-key order, with a version prefix. Equal policies have equal
// fingerprints.
func PolicyFingerprint(p *policy.Policy) string {
	decisions := p.Decisions()
	leaves := make([]string, len(decisions))
	for i, d := range decisions {
		leaves[i] = DecisionHash(d.State.Key(), factored.ActionKey(d.Action))
	}
	return fingerprintPrefix + BuildMerkleRoot(leaves)
}

// VerifyPolicy reports whether stored is the fingerprint of p.
func VerifyPolicy(stored string, p *policy.Policy) bool {
	return strings.HasPrefix(stored, fingerprintPrefix) && stored == PolicyFingerprint(p)
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string. The 0x01 byte
// separates internal nodes from leaves.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the
// root. An empty input yields "", a single leaf is its own root, and an odd
// node at any level is hashed with itself.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}
