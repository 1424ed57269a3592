package credential

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	h, err := Hash(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	return h
}

func TestVerify_CorrectPassword_ReturnsTrue(t *testing.T) {
	h := hashForTest(t, "correct-horse")

	if !Verify("correct-horse", h) {
		t.Error("Verify should return true for the correct password")
	}
}

func TestVerify_SingleCharacterMutation_ReturnsFalse(t *testing.T) {
	password := "correct-horse"
	h := hashForTest(t, password)

	for i := 0; i < len(password); i++ {
		mutated := []byte(password)
		mutated[i]++
		if Verify(string(mutated), h) {
			t.Errorf("Verify(%q) should return false", mutated)
		}
	}

	if Verify(password+"x", h) {
		t.Error("Verify should return false for an appended character")
	}
	if Verify(password[:len(password)-1], h) {
		t.Error("Verify should return false for a removed character")
	}
}

func TestVerify_MalformedHash_ReturnsFalse(t *testing.T) {
	for _, h := range []string{"", "not-a-hash", "$2a$10$short", "plaintext-password"} {
		if Verify("plaintext-password", h) {
			t.Errorf("Verify with malformed hash %q should return false", h)
		}
	}
}

func TestVerifyDummy_AlwaysFalse(t *testing.T) {
	if VerifyDummy(dummyPassword, bcrypt.MinCost) {
		t.Error("VerifyDummy must always return false")
	}
}

// ダミー照合は保存済みハッシュと同じコストで行われること
func TestVerifyDummy_UsesConfiguredCost(t *testing.T) {
	tests := []struct {
		cost int
		want int
	}{
		{0, bcrypt.DefaultCost},
		{bcrypt.MinCost, bcrypt.MinCost},
		{5, 5},
		{1, bcrypt.MinCost},
	}
	for _, tt := range tests {
		got, err := bcrypt.Cost(dummyHashFor(tt.cost))
		if err != nil {
			t.Fatalf("bcrypt.Cost(%d): %v", tt.cost, err)
		}
		if got != tt.want {
			t.Errorf("dummy hash cost for %d = %d, want %d", tt.cost, got, tt.want)
		}
	}

	h := hashForTest(t, "some-password")
	stored, _ := bcrypt.Cost([]byte(h))
	dummy, _ := bcrypt.Cost(dummyHashFor(bcrypt.MinCost))
	if stored != dummy {
		t.Errorf("stored cost %d and dummy cost %d differ", stored, dummy)
	}
}

func TestDummyHashFor_Cached(t *testing.T) {
	a := dummyHashFor(bcrypt.MinCost)
	b := dummyHashFor(bcrypt.MinCost)
	if string(a) != string(b) {
		t.Error("dummy hash should be generated once per cost")
	}
}

func TestHash_ProducesSaltedHashes(t *testing.T) {
	a := hashForTest(t, "same-password")
	b := hashForTest(t, "same-password")

	if a == b {
		t.Error("two hashes of the same password should differ (salt)")
	}
	if !Verify("same-password", a) || !Verify("same-password", b) {
		t.Error("both hashes should verify")
	}
}

func TestHash_DefaultCostWhenZero(t *testing.T) {
	h, err := Hash("password-123", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(h))
	if err != nil {
		t.Fatalf("bcrypt.Cost: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestHash_TooLong(t *testing.T) {
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Hash(string(long), bcrypt.MinCost); err != ErrPasswordTooLong {
		t.Errorf("err = %v, want %v", err, ErrPasswordTooLong)
	}
}
