package consent

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeSource produces the one-time codes sent to patients.
type CodeSource interface {
	SixDigitCode() (string, error)
}

type cryptoCodeSource struct{}

// NewCodeSource returns a CodeSource backed by crypto/rand.
func NewCodeSource() CodeSource {
	return cryptoCodeSource{}
}

var codeSpan = big.NewInt(900000)

// SixDigitCode draws a uniform integer in [100000, 999999]. rand.Int does
// rejection sampling internally, so every code is equally likely.
func (cryptoCodeSource) SixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
