package reservation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// randomToken returns a random hex string of n bytes.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var codeSpace = big.NewInt(10_000_000)

// newBookingCode returns the short code printed on the confirmation
// page: "SP" followed by seven digits.
func newBookingCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SP%07d", n.Int64()), nil
}

func newBookingID() string { return uuid.NewString() }
