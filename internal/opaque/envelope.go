package opaque

// Envelope sealing and recovery (internal key-recovery mode): the client's
// long-term AKE keypair is re-derived from the randomized password instead of
// being stored, so the envelope carries only a nonce and an authentication
// tag over the cleartext credentials.

import (
	"crypto/hmac"

	"github.com/gtank/ristretto255"
)

type envelopeKeys struct {
	authKey    []byte
	exportKey  []byte
	clientSK   *ristretto255.Scalar
	clientPK   *ristretto255.Element
	maskingKey []byte
}

func deriveEnvelopeKeys(randomizedPwd, nonce []byte) (*envelopeKeys, error) {
	seed := expand(randomizedPwd, concat(nonce, labelPrivateKey), seedSize)
	sk, pk, err := deriveKeyPair(seed, nil)
	if err != nil {
		return nil, err
	}
	return &envelopeKeys{
		authKey:    expand(randomizedPwd, concat(nonce, labelAuthKey), hashSize),
		exportKey:  expand(randomizedPwd, concat(nonce, labelExportKey), hashSize),
		clientSK:   sk,
		clientPK:   pk,
		maskingKey: expand(randomizedPwd, labelMaskingKey, hashSize),
	}, nil
}

func envelopeTag(authKey, nonce, serverPublicKey, clientPublicKey []byte) []byte {
	return computeMac(authKey, concat(nonce, serverPublicKey, clientPublicKey))
}

// sealEnvelope builds the envelope and the registration record material from
// the randomized password and the server's public key.
func sealEnvelope(randomizedPwd, serverPublicKey []byte) (*RegistrationRecord, []byte, error) {
	nonce, err := randomBytes(nonceSize)
	if err != nil {
		return nil, nil, err
	}
	keys, err := deriveEnvelopeKeys(randomizedPwd, nonce)
	if err != nil {
		return nil, nil, err
	}
	clientPK := keys.clientPK.Encode(nil)
	rec := &RegistrationRecord{
		ClientPublicKey: clientPK,
		MaskingKey:      keys.maskingKey,
		Envelope: Envelope{
			Nonce:   nonce,
			AuthTag: envelopeTag(keys.authKey, nonce, serverPublicKey, clientPK),
		},
	}
	return rec, keys.exportKey, nil
}

// recoverEnvelope re-derives the client keypair from the randomized password
// and authenticates the envelope. A wrong password yields a different
// randomized password and therefore a tag mismatch.
func recoverEnvelope(randomizedPwd, serverPublicKey []byte, env *Envelope) (*envelopeKeys, error) {
	keys, err := deriveEnvelopeKeys(randomizedPwd, env.Nonce)
	if err != nil {
		return nil, err
	}
	clientPK := keys.clientPK.Encode(nil)
	expected := envelopeTag(keys.authKey, env.Nonce, serverPublicKey, clientPK)
	if !hmac.Equal(expected, env.AuthTag) {
		return nil, ErrEnvelopeAuth
	}
	return keys, nil
}

// maskResponse hides the server public key and envelope under a pad derived
// from the record's masking key, so a KE2 leaks nothing to anyone who cannot
// already compute the OPRF output.
func maskResponse(maskingKey, maskingNonce, serverPublicKey []byte, env *Envelope) []byte {
	pad := expand(maskingKey, concat(maskingNonce, labelResponsePad), maskedResponseSize)
	plain := concat(serverPublicKey, env.serialize())
	for i := range plain {
		plain[i] ^= pad[i]
	}
	return plain
}

func unmaskResponse(maskingKey, maskingNonce, masked []byte) (serverPublicKey []byte, env *Envelope, err error) {
	if len(masked) != maskedResponseSize {
		return nil, nil, ErrMalformed
	}
	pad := expand(maskingKey, concat(maskingNonce, labelResponsePad), maskedResponseSize)
	plain := make([]byte, maskedResponseSize)
	for i := range masked {
		plain[i] = masked[i] ^ pad[i]
	}
	serverPublicKey = plain[:elementSize]
	if _, err := decodeNonIdentityElement(serverPublicKey); err != nil {
		return nil, nil, err
	}
	env = &Envelope{
		Nonce:   plain[elementSize : elementSize+nonceSize],
		AuthTag: plain[elementSize+nonceSize:],
	}
	return serverPublicKey, env, nil
}
