// Package hash 提供 API Key 的哈希与校验。
package hash

import "golang.org/x/crypto/bcrypt"

// HashKey 使用 bcrypt 生成 key 的哈希。
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckKeyHash 比较明文 key 与哈希是否匹配。
func CheckKeyHash(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
