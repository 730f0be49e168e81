package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderReference builds the correlation string embedded in gateway
// metadata: ORD-<orderNumber>-<4 random digits>. The order number already
// makes it unique per store; the suffix keeps it unguessable across stores.
func GenerateOrderReference(orderNumber int64) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// fallback: time-based entropy
		n = big.NewInt(time.Now().UnixNano() % 10000)
	}

	return fmt.Sprintf("ORD-%d-%04d", orderNumber, n.Int64())
}
