package opaque

import (
	"crypto/hmac"

	"github.com/gtank/ristretto255"
)

// Server holds the process-wide OPAQUE material: the OPRF seed and the AKE
// keypair, both derived deterministically from operator-provisioned seeds.
// Regenerating either invalidates every previously issued credential record,
// so the seeds must be stable across restarts.
type Server struct {
	oprfSeed       []byte
	akePrivateKey  *ristretto255.Scalar
	akePublicKey   *ristretto255.Element
	publicKeyBytes []byte
}

func NewServer(oprfSeed, akeSeed []byte) (*Server, error) {
	if len(oprfSeed) < seedSize || len(akeSeed) < seedSize {
		return nil, ErrInvalidSeed
	}
	sk, pk, err := deriveKeyPair(akeSeed, []byte("server-ake"))
	if err != nil {
		return nil, err
	}
	return &Server{
		oprfSeed:       clone(oprfSeed),
		akePrivateKey:  sk,
		akePublicKey:   pk,
		publicKeyBytes: pk.Encode(nil),
	}, nil
}

// PublicKey returns the server's long-term AKE public key encoding.
func (s *Server) PublicKey() []byte {
	return clone(s.publicKeyBytes)
}

// RegisterInit evaluates the OPRF over the client's blinded password using the
// key derived for this credential identifier. Stateless and idempotent:
// retrying with the same request yields the same response.
func (s *Server) RegisterInit(req *RegistrationRequest, username string) (*RegistrationResponse, error) {
	blinded, err := decodeNonIdentityElement(req.BlindedMessage)
	if err != nil {
		return nil, err
	}
	key := credentialOprfKey(s.oprfSeed, username)
	return &RegistrationResponse{
		EvaluatedMessage: oprfEvaluate(key, blinded).Encode(nil),
		ServerPublicKey:  s.PublicKey(),
	}, nil
}

// RegisterFinish validates a client-produced registration record before it is
// committed to storage. The envelope itself is opaque to the server; only the
// group elements can be checked here.
func (s *Server) RegisterFinish(record *RegistrationRecord) error {
	if _, err := decodeNonIdentityElement(record.ClientPublicKey); err != nil {
		return err
	}
	if len(record.MaskingKey) != hashSize {
		return ErrMalformed
	}
	return nil
}

// ExpectedAuth is the server-side verifier state produced by LoginInit and
// consumed exactly once by LoginFinish. It is safe to hand to an external
// store as an opaque blob via Marshal.
type ExpectedAuth struct {
	ClientMAC  []byte
	SessionKey []byte
}

const ExpectedAuthSize = hashSize + hashSize

func (e *ExpectedAuth) Marshal() []byte {
	return concat(e.ClientMAC, e.SessionKey)
}

func UnmarshalExpectedAuth(data []byte) (*ExpectedAuth, error) {
	if len(data) != ExpectedAuthSize {
		return nil, ErrMalformed
	}
	return &ExpectedAuth{
		ClientMAC:  clone(data[:hashSize]),
		SessionKey: clone(data[hashSize:]),
	}, nil
}

// LoginInit runs the server side of the 3DH exchange against a stored
// credential record: OPRF evaluation, credential masking, ephemeral keypair,
// transcript MAC. It returns the KE2 for the client and the ExpectedAuth the
// caller must stash until the matching LoginFinish arrives.
func (s *Server) LoginInit(ke1 *KE1, record *RegistrationRecord, username string) (*KE2, *ExpectedAuth, error) {
	blinded, err := decodeNonIdentityElement(ke1.BlindedMessage)
	if err != nil {
		return nil, nil, err
	}
	clientEphemeralPK, err := decodeNonIdentityElement(ke1.ClientEphemeralPK)
	if err != nil {
		return nil, nil, err
	}
	clientPK, err := decodeNonIdentityElement(record.ClientPublicKey)
	if err != nil {
		return nil, nil, err
	}

	key := credentialOprfKey(s.oprfSeed, username)
	evaluated := oprfEvaluate(key, blinded)

	maskingNonce, err := randomBytes(nonceSize)
	if err != nil {
		return nil, nil, err
	}
	masked := maskResponse(record.MaskingKey, maskingNonce, s.publicKeyBytes, &record.Envelope)

	serverNonce, err := randomBytes(nonceSize)
	if err != nil {
		return nil, nil, err
	}
	ephemeralSeed, err := randomBytes(seedSize)
	if err != nil {
		return nil, nil, err
	}
	ephemeralSK, ephemeralPK, err := deriveKeyPair(ephemeralSeed, []byte("server-ephemeral"))
	if err != nil {
		return nil, nil, err
	}

	ke2 := &KE2{
		EvaluatedMessage:  evaluated.Encode(nil),
		MaskingNonce:      maskingNonce,
		MaskedResponse:    masked,
		ServerNonce:       serverNonce,
		ServerEphemeralPK: ephemeralPK.Encode(nil),
	}

	// 3DH: ephemeral-ephemeral, static-ephemeral, ephemeral-static.
	ikm := concat(
		dh(ephemeralSK, clientEphemeralPK),
		dh(s.akePrivateKey, clientEphemeralPK),
		dh(ephemeralSK, clientPK),
	)
	pre := preamble(username, ke1, s.publicKeyBytes, ke2)
	keys := deriveAkeKeys(ikm, pre)
	ke2.ServerMAC = serverMac(keys, pre)

	expected := &ExpectedAuth{
		ClientMAC:  clientMac(keys, pre, ke2.ServerMAC),
		SessionKey: keys.sessionKey,
	}
	return ke2, expected, nil
}

// LoginFinish validates the client's transcript MAC against the expected
// state. The comparison is constant time; on mismatch the caller gets
// ErrAuthFailed and nothing else, whether the cause was a wrong password or a
// tampered transcript.
func (s *Server) LoginFinish(ke3 *KE3, expected *ExpectedAuth) ([]byte, error) {
	if !hmac.Equal(ke3.ClientMAC, expected.ClientMAC) {
		return nil, ErrAuthFailed
	}
	return clone(expected.SessionKey), nil
}
