package integrity

import (
	"testing"

	"github.com/ashita-ai/xplan/internal/testutil"
)

func TestDecisionHash_Deterministic(t *testing.T) {
	h1 := DecisionHash("loc=0", "move(1,slow)")
	h2 := DecisionHash("loc=0", "move(1,slow)")

	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64-char hex SHA-256, got %d chars", len(h1))
	}
}

func TestDecisionHash_FieldBoundaries(t *testing.T) {
	h1 := DecisionHash("ab", "c")
	h2 := DecisionHash("a", "bc")

	if h1 == h2 {
		t.Fatal("shifting bytes between fields should change the hash")
	}
}

func TestPolicyFingerprint(t *testing.T) {
	w := testutil.NewLineWorld()

	slow1 := PolicyFingerprint(w.Policy(testutil.Slow))
	slow2 := PolicyFingerprint(w.Policy(testutil.Slow))
	fast := PolicyFingerprint(w.Policy(testutil.Fast))

	if slow1 != slow2 {
		t.Fatalf("fingerprint not deterministic: %q != %q", slow1, slow2)
	}
	if slow1 == fast {
		t.Fatal("different policies should have different fingerprints")
	}
	if len(slow1) != len(fingerprintPrefix)+64 {
		t.Fatalf("unexpected fingerprint length %d", len(slow1))
	}
}

func TestPolicyFingerprint_InsertionOrder(t *testing.T) {
	w := testutil.NewLineWorld()
	p := w.Policy(testutil.Slow)

	reversed := w.Policy(testutil.Slow)
	decisions := reversed.Decisions()
	for _, d := range decisions {
		reversed.Remove(d.State)
	}
	for i := len(decisions) - 1; i >= 0; i-- {
		reversed.Put(decisions[i].State, decisions[i].Action)
	}

	if PolicyFingerprint(p) != PolicyFingerprint(reversed) {
		t.Fatal("fingerprint should not depend on insertion order")
	}
}

func TestVerifyPolicy(t *testing.T) {
	w := testutil.NewLineWorld()
	p := w.Policy(testutil.Slow)
	fp := PolicyFingerprint(p)

	if !VerifyPolicy(fp, p) {
		t.Fatal("fingerprint should verify against its own policy")
	}

	p.Put(w.At(0), w.MoveTo(1, testutil.Fast))
	if VerifyPolicy(fp, p) {
		t.Fatal("fingerprint should not verify after the policy changed")
	}
	if VerifyPolicy(fp[len(fingerprintPrefix):], w.Policy(testutil.Slow)) {
		t.Fatal("fingerprint without version prefix should not verify")
	}
}

func TestBuildMerkleRoot_Empty(t *testing.T) {
	root := BuildMerkleRoot(nil)
	if root != "" {
		t.Fatalf("empty input should produce empty root, got %q", root)
	}
}

func TestBuildMerkleRoot_SingleLeaf(t *testing.T) {
	leaf := "abc123"
	root := BuildMerkleRoot([]string{leaf})
	if root != leaf {
		t.Fatalf("single leaf should be the root: got %q, want %q", root, leaf)
	}
}

func TestBuildMerkleRoot_OrderMatters(t *testing.T) {
	r1 := BuildMerkleRoot([]string{"a", "b", "c"})
	r2 := BuildMerkleRoot([]string{"b", "a", "c"})

	if r1 == r2 {
		t.Fatal("different leaf ordering should produce different roots")
	}
}

func TestBuildMerkleRoot_OddLeafCount(t *testing.T) {
	root := BuildMerkleRoot([]string{"x", "y", "z"})
	want := hashPair(hashPair("x", "y"), hashPair("z", "z"))
	if root != want {
		t.Fatalf("odd leaf should be paired with itself: got %q, want %q", root, want)
	}
}
