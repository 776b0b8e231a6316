package opaque

// Oblivious pseudorandom function over ristretto255. The client blinds the
// password with a random scalar, the server evaluates with a per-credential
// key, and the client unblinds and hashes the result. The server learns
// nothing about the password; the client learns nothing about the key.

import (
	"crypto/sha512"

	"github.com/gtank/ristretto255"
)

// oprfBlind maps the password into the group and blinds it.
func oprfBlind(password []byte) (blind *ristretto255.Scalar, blinded *ristretto255.Element, err error) {
	blind, err = randomScalar()
	if err != nil {
		return nil, nil, err
	}
	blinded = ristretto255.NewElement().ScalarMult(blind, hashToGroup(password))
	return blind, blinded, nil
}

// oprfEvaluate is the server-side evaluation of a blinded element.
func oprfEvaluate(key *ristretto255.Scalar, blinded *ristretto255.Element) *ristretto255.Element {
	return ristretto255.NewElement().ScalarMult(key, blinded)
}

// oprfFinalize unblinds the evaluated element and derives the OPRF output.
func oprfFinalize(password []byte, blind *ristretto255.Scalar, evaluated *ristretto255.Element) []byte {
	inv := ristretto255.NewScalar().Invert(blind)
	unblinded := ristretto255.NewElement().ScalarMult(inv, evaluated)

	h := sha512.New()
	h.Write(labelOprfFinalize)
	h.Write(i2osp2(len(password)))
	h.Write(password)
	h.Write(unblinded.Encode(nil))
	return h.Sum(nil)
}

// credentialOprfKey derives the per-credential OPRF key from the process-wide
// OPRF seed and the credential identifier. Deterministic: the same username
// always maps to the same key, so registration retries and later logins agree.
func credentialOprfKey(oprfSeed []byte, credentialIdentifier string) *ristretto255.Scalar {
	info := concat(labelOprfKey, i2osp2(len(credentialIdentifier)), []byte(credentialIdentifier))
	return ristretto255.NewScalar().FromUniformBytes(expand(oprfSeed, info, 64))
}

// randomizedPassword combines the OPRF output with its Argon2id stretching
// into the root key for envelope and masking derivations.
func randomizedPassword(oprfOutput []byte) []byte {
	return extract(nil, concat(oprfOutput, stretch(oprfOutput)))
}
