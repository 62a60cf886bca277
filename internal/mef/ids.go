package mef

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const transmissionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTransmissionID generates a globally unique transmission identifier
// matching ^[A-Z0-9]{8,20}$: a T prefix, the UTC build timestamp, and a
// random suffix.
func NewTransmissionID(now time.Time) string {
	return "T" + now.UTC().Format("20060102150405") + randomString(transmissionIDAlphabet, 5)
}

// NewSubmissionID generates the 15-20 digit numeric submission identifier
// the IRS uses to correlate acknowledgments: the originator's 6-digit EFIN,
// the 4-digit year, the 3-digit day of year, and a 7-digit random sequence.
func NewSubmissionID(efin string, now time.Time) string {
	now = now.UTC()
	for len(efin) < 6 {
		efin = "0" + efin
	}
	return fmt.Sprintf("%s%04d%03d%s", efin, now.Year(), now.YearDay(), randomString("0123456789", 7))
}

func randomString(alphabet string, n int) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the platform entropy source is broken
			panic(fmt.Sprintf("random source unavailable: %v", err))
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
