package app

import (
	"crypto/rand"
	"fmt"
)

// Certificate codes are short and human-shareable. The alphabet drops
// lookalike characters (0/O, 1/I/L) so codes survive being read aloud.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
const codeLength = 10

func newCertificateCode() string {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return fmt.Sprintf("CR-%s", b)
}
