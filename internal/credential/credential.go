// Package credential はパスワードのハッシュ化と照合を提供する。
// ハッシュにはbcryptを使用し、比較はbcrypt内部の定数時間比較に委ねる。
package credential

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength はログイン・登録で受け付けるパスワードの最小文字数。
const MinPasswordLength = 8

// MaxPasswordBytes はbcryptが扱える入力の上限バイト数。
const MaxPasswordBytes = 72

// ErrPasswordTooLong はbcryptの入力上限を超えるパスワードを表す。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// dummyPassword はダミーハッシュの元になる平文。
const dummyPassword = "storefront-dummy-password"

// dummyHashes はコストごとのダミーハッシュ（int → []byte）。
// 実在ユーザーの照合と同程度の計算時間を消費させ、応答時間からユーザーの存在を推測されないようにする。
// 照合時間はコストで決まるため、保存済みハッシュと同じコストのものを使う。
var dummyHashes sync.Map

// Verify は平文のパスワードと保存済みハッシュを照合する。
// 不一致・ハッシュ形式の不正のいずれの場合もfalseを返し、両者を区別しない。
func Verify(plaintext, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// VerifyDummy はダミーハッシュに対して照合を行い、常にfalseを返す。
// 未登録ユーザーや無効化済みユーザーのログイン試行で呼び出す。
// costにはユーザーのハッシュ生成に使ったコスト（BCRYPT_COST）を渡す。0以下はbcrypt.DefaultCost。
func VerifyDummy(plaintext string, cost int) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHashFor(cost), []byte(plaintext))
	return false
}

// dummyHashFor はcostのダミーハッシュを返す。初回呼び出し時に生成する。
func dummyHashFor(cost int) []byte {
	cost = normalizeCost(cost)
	if h, ok := dummyHashes.Load(cost); ok {
		return h.([]byte)
	}
	h, _ := dummyHashes.LoadOrStore(cost, mustHash(dummyPassword, cost))
	return h.([]byte)
}

// normalizeCost はHashとVerifyDummyで同じコストになるように値を丸める。
func normalizeCost(cost int) int {
	switch {
	case cost <= 0:
		return bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		return bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	}
	return cost
}

// Hash は平文のパスワードからbcryptハッシュを生成する。
// costが0以下の場合はbcrypt.DefaultCostを使用し、範囲外の値はMinCost〜MaxCostに丸める。
func Hash(plaintext string, cost int) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), normalizeCost(cost))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

func mustHash(plaintext string, cost int) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		panic(err)
	}
	return h
}
