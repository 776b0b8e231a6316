package opaque

import (
	"crypto/hmac"

	"github.com/gtank/ristretto255"
)

// Client-side protocol. The browser front end runs its own OPAQUE client; this
// implementation exists for the test suite and for headless tooling, mirroring
// the server's derivations exactly.

// ClientRegistration tracks client state between RegisterInit and Finalize.
type ClientRegistration struct {
	password []byte
	blind    *ristretto255.Scalar
}

// ClientRegisterInit blinds the password into a RegistrationRequest.
func ClientRegisterInit(password []byte) (*ClientRegistration, *RegistrationRequest, error) {
	blind, blinded, err := oprfBlind(password)
	if err != nil {
		return nil, nil, err
	}
	st := &ClientRegistration{password: clone(password), blind: blind}
	return st, &RegistrationRequest{BlindedMessage: blinded.Encode(nil)}, nil
}

// Finalize unblinds the OPRF evaluation, stretches it, and seals the envelope
// into the RegistrationRecord the server will store. The export key is
// returned for client-side use and never leaves the client.
func (st *ClientRegistration) Finalize(resp *RegistrationResponse) (*RegistrationRecord, []byte, error) {
	evaluated, err := decodeNonIdentityElement(resp.EvaluatedMessage)
	if err != nil {
		return nil, nil, err
	}
	if _, err := decodeNonIdentityElement(resp.ServerPublicKey); err != nil {
		return nil, nil, err
	}
	randomizedPwd := randomizedPassword(oprfFinalize(st.password, st.blind, evaluated))
	return sealEnvelope(randomizedPwd, resp.ServerPublicKey)
}

// ClientLogin tracks client state between LoginInit and Finalize.
type ClientLogin struct {
	password    []byte
	blind       *ristretto255.Scalar
	ephemeralSK *ristretto255.Scalar
	ke1         *KE1
}

// ClientLoginInit blinds the password and generates the ephemeral share for
// the KE1 message.
func ClientLoginInit(password []byte) (*ClientLogin, *KE1, error) {
	blind, blinded, err := oprfBlind(password)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randomBytes(nonceSize)
	if err != nil {
		return nil, nil, err
	}
	ephemeralSeed, err := randomBytes(seedSize)
	if err != nil {
		return nil, nil, err
	}
	ephemeralSK, ephemeralPK, err := deriveKeyPair(ephemeralSeed, []byte("client-ephemeral"))
	if err != nil {
		return nil, nil, err
	}
	ke1 := &KE1{
		BlindedMessage:    blinded.Encode(nil),
		ClientNonce:       nonce,
		ClientEphemeralPK: ephemeralPK.Encode(nil),
	}
	return &ClientLogin{
		password:    clone(password),
		blind:       blind,
		ephemeralSK: ephemeralSK,
		ke1:         ke1,
	}, ke1, nil
}

// Finalize recovers the envelope from the masked response, authenticates the
// server's transcript MAC, and produces KE3 plus the shared session key. A
// wrong password surfaces as ErrEnvelopeAuth; a forged or replayed KE2
// surfaces as ErrServerAuth.
func (st *ClientLogin) Finalize(ke2 *KE2, username string) (*KE3, []byte, error) {
	evaluated, err := decodeNonIdentityElement(ke2.EvaluatedMessage)
	if err != nil {
		return nil, nil, err
	}
	randomizedPwd := randomizedPassword(oprfFinalize(st.password, st.blind, evaluated))
	maskingKey := expand(randomizedPwd, labelMaskingKey, hashSize)

	serverPublicKey, env, err := unmaskResponse(maskingKey, ke2.MaskingNonce, ke2.MaskedResponse)
	if err != nil {
		return nil, nil, ErrEnvelopeAuth
	}
	keys, err := recoverEnvelope(randomizedPwd, serverPublicKey, env)
	if err != nil {
		return nil, nil, err
	}

	serverPK, err := decodeNonIdentityElement(serverPublicKey)
	if err != nil {
		return nil, nil, err
	}
	serverEphemeralPK, err := decodeNonIdentityElement(ke2.ServerEphemeralPK)
	if err != nil {
		return nil, nil, err
	}

	ikm := concat(
		dh(st.ephemeralSK, serverEphemeralPK),
		dh(st.ephemeralSK, serverPK),
		dh(keys.clientSK, serverEphemeralPK),
	)
	pre := preamble(username, st.ke1, serverPublicKey, ke2)
	akeKeys := deriveAkeKeys(ikm, pre)

	if !hmac.Equal(serverMac(akeKeys, pre), ke2.ServerMAC) {
		return nil, nil, ErrServerAuth
	}

	ke3 := &KE3{ClientMAC: clientMac(akeKeys, pre, ke2.ServerMAC)}
	return ke3, clone(akeKeys.sessionKey), nil
}
