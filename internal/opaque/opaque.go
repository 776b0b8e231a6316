// Package opaque implements the OPAQUE asymmetric password-authenticated key
// exchange: a three-message registration flow and a three-message 3DH login
// flow in which the server never sees the plaintext password.
//
// The suite is ristretto255 / SHA-512 / HKDF-SHA-512 / HMAC-SHA-512 with
// Argon2id as the key-stretching function. Both the client and the server side
// of the protocol live in this package; the server side is driven by the auth
// usecase, the client side by the test suite and by command-line tooling.
package opaque

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"io"

	"github.com/gtank/ristretto255"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// Group element and scalar encodings are 32 bytes on ristretto255.
	elementSize = 32
	scalarSize  = 32

	// SHA-512 output, used for MACs, keys, and the OPRF output.
	hashSize = 64

	nonceSize = 32
	seedSize  = 32

	envelopeSize = nonceSize + hashSize
	// Masked credential response: server public key followed by the envelope.
	maskedResponseSize = elementSize + envelopeSize
)

var (
	ErrAuthFailed    = errors.New("opaque: client authentication failed")
	ErrServerAuth    = errors.New("opaque: server authentication failed")
	ErrEnvelopeAuth  = errors.New("opaque: envelope recovery failed")
	ErrInvalidSeed   = errors.New("opaque: seed material must be at least 32 bytes")
	ErrMalformed     = errors.New("opaque: malformed message")
	ErrInvalidPoint  = errors.New("opaque: invalid group element")
	ErrIdentityPoint = errors.New("opaque: identity element rejected")
)

// Domain-separation labels. Changing any of these invalidates every issued
// credential.
var (
	labelHashToGroup   = []byte("Cypher-OPRF-HashToGroup")
	labelOprfFinalize  = []byte("Cypher-OPRF-Finalize")
	labelOprfKey       = []byte("Cypher-OprfKey")
	labelDeriveKeyPair = []byte("Cypher-DeriveKeyPair")
	labelMaskingKey    = []byte("Cypher-MaskingKey")
	labelResponsePad   = []byte("Cypher-CredentialResponsePad")
	labelAuthKey       = []byte("Cypher-AuthKey")
	labelExportKey     = []byte("Cypher-ExportKey")
	labelPrivateKey    = []byte("Cypher-PrivateKey")
	labelPreamble      = []byte("Cypher-Preamble-v1")
	labelHandshake     = []byte("Cypher-HandshakeSecret")
	labelSessionKey    = []byte("Cypher-SessionKey")
	labelServerMac     = []byte("Cypher-ServerMAC")
	labelClientMac     = []byte("Cypher-ClientMAC")
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func randomScalar() (*ristretto255.Scalar, error) {
	wide, err := randomBytes(64)
	if err != nil {
		return nil, err
	}
	return ristretto255.NewScalar().FromUniformBytes(wide), nil
}

// hashToGroup maps arbitrary input to a group element through a 64-byte
// SHA-512 digest, the ristretto255 one-way map underneath.
func hashToGroup(input []byte) *ristretto255.Element {
	h := sha512.New()
	h.Write(labelHashToGroup)
	h.Write(input)
	return ristretto255.NewElement().FromUniformBytes(h.Sum(nil))
}

// expand reads length bytes of HKDF-Expand output keyed with prk.
func expand(prk []byte, info []byte, length int) []byte {
	out := make([]byte, length)
	r := hkdf.Expand(sha512.New, prk, info)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF-SHA-512 can produce up to 255*64 bytes; all lengths used in
		// this package are far below that.
		panic("opaque: hkdf expand: " + err.Error())
	}
	return out
}

func extract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha512.New, ikm, salt)
}

// stretch hardens the OPRF output against offline dictionary attacks.
func stretch(oprfOutput []byte) []byte {
	return argon2.IDKey(oprfOutput, nil, 3, 64*1024, 4, hashSize)
}

// deriveKeyPair deterministically derives an AKE keypair from seed material.
// The same seed always yields the same keypair, which keeps the server
// identity stable across restarts.
func deriveKeyPair(seed, info []byte) (*ristretto255.Scalar, *ristretto255.Element, error) {
	wide := expand(seed, append(labelDeriveKeyPair, info...), 64)
	sk := ristretto255.NewScalar().FromUniformBytes(wide)
	if sk.Equal(ristretto255.NewScalar()) == 1 {
		return nil, nil, errors.New("opaque: derived zero scalar")
	}
	return sk, ristretto255.NewElement().ScalarBaseMult(sk), nil
}

// dh computes a Diffie-Hellman shared point and returns its encoding.
func dh(sk *ristretto255.Scalar, pk *ristretto255.Element) []byte {
	return ristretto255.NewElement().ScalarMult(sk, pk).Encode(nil)
}

func computeMac(key, data []byte) []byte {
	m := hmac.New(sha512.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func decodeElement(b []byte) (*ristretto255.Element, error) {
	if len(b) != elementSize {
		return nil, ErrInvalidPoint
	}
	e := ristretto255.NewElement()
	if err := e.Decode(b); err != nil {
		return nil, ErrInvalidPoint
	}
	return e, nil
}

// decodeNonIdentityElement additionally rejects the identity element, which
// would collapse the OPRF evaluation and the DH terms to a constant.
func decodeNonIdentityElement(b []byte) (*ristretto255.Element, error) {
	e, err := decodeElement(b)
	if err != nil {
		return nil, err
	}
	if e.Equal(ristretto255.NewElement()) == 1 {
		return nil, ErrIdentityPoint
	}
	return e, nil
}

func i2osp2(n int) []byte {
	return []byte{byte(n >> 8), byte(n)}
}

func concat(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
