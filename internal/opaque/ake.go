package opaque

// 3DH authenticated key exchange. Three Diffie-Hellman terms bind the session
// to both ephemeral shares and both long-term keys; the key schedule binds
// every derived key to the full transcript preamble.

import "crypto/sha512"

// preamble is the AKE transcript: credential identifier, the full KE1, the
// server identity, and the KE2 prefix (everything before the server MAC).
// Client and server must compute it byte-for-byte identically.
func preamble(credentialIdentifier string, ke1 *KE1, serverPublicKey []byte, ke2 *KE2) []byte {
	return concat(
		labelPreamble,
		i2osp2(len(credentialIdentifier)),
		[]byte(credentialIdentifier),
		ke1.Serialize(),
		serverPublicKey,
		ke2.serializeWithoutMac(),
	)
}

type akeKeys struct {
	serverMacKey []byte
	clientMacKey []byte
	sessionKey   []byte
}

// deriveAkeKeys runs the key schedule over the 3DH shared secret material and
// the transcript preamble.
func deriveAkeKeys(ikm, preambleBytes []byte) *akeKeys {
	transcript := sha512.Sum512(preambleBytes)
	prk := extract(nil, ikm)
	handshake := expand(prk, concat(labelHandshake, transcript[:]), hashSize)
	return &akeKeys{
		serverMacKey: expand(handshake, labelServerMac, hashSize),
		clientMacKey: expand(handshake, labelClientMac, hashSize),
		sessionKey:   expand(prk, concat(labelSessionKey, transcript[:]), hashSize),
	}
}

// serverMac covers the hashed preamble; clientMac additionally covers the
// server MAC, closing the transcript.
func serverMac(keys *akeKeys, preambleBytes []byte) []byte {
	transcript := sha512.Sum512(preambleBytes)
	return computeMac(keys.serverMacKey, transcript[:])
}

func clientMac(keys *akeKeys, preambleBytes, serverMacBytes []byte) []byte {
	transcript := sha512.Sum512(concat(preambleBytes, serverMacBytes))
	return computeMac(keys.clientMacKey, transcript[:])
}
