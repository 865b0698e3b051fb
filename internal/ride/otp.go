package ride

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// generateOTP returns a 4-digit one-time code, zero-padded.
func generateOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// crypto/rand failing means the process is in bad shape;
		// a constant would defeat the handshake entirely.
		panic(fmt.Sprintf("otp entropy unavailable: %v", err))
	}
	return fmt.Sprintf("%04d", n.Int64())
}
