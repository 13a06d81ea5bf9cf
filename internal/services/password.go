package services

import (
	"crypto/rand"
	"math/big"
)

// tempPasswordLength is comfortably above minPasswordLength
const tempPasswordLength = 16

// GenerateTempPassword returns a random password containing at least one
// digit, one uppercase letter, one lowercase letter and one symbol.
func GenerateTempPassword() (string, error) {
	const (
		digits  = "23456789"
		uppers  = "ABCDEFGHJKLMNPQRSTUVWXYZ" // no I or O
		lowers  = "abcdefghijkmnpqrstuvwxyz" // no l or o
		symbols = "!@#$%&*"
	)
	charsets := []string{digits, uppers, lowers, symbols}
	result := make([]byte, tempPasswordLength)

	for i, charset := range charsets {
		c, err := randomChar(charset)
		if err != nil {
			return "", err
		}
		result[i] = c
	}

	all := digits + uppers + lowers + symbols
	for i := len(charsets); i < len(result); i++ {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		result[i] = c
	}

	// Fisher-Yates so the guaranteed classes are not always first
	for i := len(result) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}
	return string(result), nil
}

func randomChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[n.Int64()], nil
}
