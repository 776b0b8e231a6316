package main

import (
	"crypto/rand"
	"fmt"
	"log"
)

// Prints fresh server secrets in .env form. Run once at provisioning time;
// rotating OPRF_SEED or AKE_KEYPAIR_SEED afterwards orphans every registered
// credential.
func main() {
	for _, key := range []string{"OPRF_SEED", "AKE_KEYPAIR_SEED", "TOTP_ENC_KEY"} {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("generate %s: %v", key, err)
		}
		fmt.Printf("%s=%x\n", key, buf)
	}
}
