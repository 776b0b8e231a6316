package opaque

// Wire messages are fixed-length binary structures. Serialize returns a fresh
// byte slice; Deserialize* fails with ErrMalformed on any length mismatch and
// with ErrInvalidPoint / ErrIdentityPoint on bad group encodings. Transport
// encoding (base64 in JSON bodies) is the caller's concern.

// RegistrationRequest is the first registration message, client to server. It
// carries the blinded password element.
type RegistrationRequest struct {
	BlindedMessage []byte
}

// RegistrationResponse is the second registration message, server to client.
type RegistrationResponse struct {
	EvaluatedMessage []byte
	ServerPublicKey  []byte
}

// Envelope is the client-sealed credential envelope stored server-side. The
// server cannot open it; it only proves possession of the password during
// login.
type Envelope struct {
	Nonce   []byte
	AuthTag []byte
}

// RegistrationRecord is the final registration message, client to server. The
// server persists it verbatim as the user's credential file.
type RegistrationRecord struct {
	ClientPublicKey []byte
	MaskingKey      []byte
	Envelope        Envelope
}

// KE1 is the first login message, client to server.
type KE1 struct {
	BlindedMessage    []byte
	ClientNonce       []byte
	ClientEphemeralPK []byte
}

// KE2 is the second login message, server to client.
type KE2 struct {
	EvaluatedMessage  []byte
	MaskingNonce      []byte
	MaskedResponse    []byte
	ServerNonce       []byte
	ServerEphemeralPK []byte
	ServerMAC         []byte
}

// KE3 is the third login message, client to server.
type KE3 struct {
	ClientMAC []byte
}

const (
	RegistrationRequestSize  = elementSize
	RegistrationResponseSize = elementSize + elementSize
	RegistrationRecordSize   = elementSize + hashSize + envelopeSize
	KE1Size                  = elementSize + nonceSize + elementSize
	KE2Size                  = elementSize + nonceSize + maskedResponseSize + nonceSize + elementSize + hashSize
	KE3Size                  = hashSize
)

func (m *RegistrationRequest) Serialize() []byte {
	return concat(m.BlindedMessage)
}

func DeserializeRegistrationRequest(data []byte) (*RegistrationRequest, error) {
	if len(data) != RegistrationRequestSize {
		return nil, ErrMalformed
	}
	if _, err := decodeNonIdentityElement(data); err != nil {
		return nil, err
	}
	return &RegistrationRequest{BlindedMessage: clone(data)}, nil
}

func (m *RegistrationResponse) Serialize() []byte {
	return concat(m.EvaluatedMessage, m.ServerPublicKey)
}

func DeserializeRegistrationResponse(data []byte) (*RegistrationResponse, error) {
	if len(data) != RegistrationResponseSize {
		return nil, ErrMalformed
	}
	if _, err := decodeNonIdentityElement(data[:elementSize]); err != nil {
		return nil, err
	}
	if _, err := decodeNonIdentityElement(data[elementSize:]); err != nil {
		return nil, err
	}
	return &RegistrationResponse{
		EvaluatedMessage: clone(data[:elementSize]),
		ServerPublicKey:  clone(data[elementSize:]),
	}, nil
}

func (e *Envelope) serialize() []byte {
	return concat(e.Nonce, e.AuthTag)
}

func (m *RegistrationRecord) Serialize() []byte {
	return concat(m.ClientPublicKey, m.MaskingKey, m.Envelope.serialize())
}

func DeserializeRegistrationRecord(data []byte) (*RegistrationRecord, error) {
	if len(data) != RegistrationRecordSize {
		return nil, ErrMalformed
	}
	if _, err := decodeNonIdentityElement(data[:elementSize]); err != nil {
		return nil, err
	}
	rest := data[elementSize:]
	return &RegistrationRecord{
		ClientPublicKey: clone(data[:elementSize]),
		MaskingKey:      clone(rest[:hashSize]),
		Envelope: Envelope{
			Nonce:   clone(rest[hashSize : hashSize+nonceSize]),
			AuthTag: clone(rest[hashSize+nonceSize:]),
		},
	}, nil
}

func (m *KE1) Serialize() []byte {
	return concat(m.BlindedMessage, m.ClientNonce, m.ClientEphemeralPK)
}

func DeserializeKE1(data []byte) (*KE1, error) {
	if len(data) != KE1Size {
		return nil, ErrMalformed
	}
	if _, err := decodeNonIdentityElement(data[:elementSize]); err != nil {
		return nil, err
	}
	if _, err := decodeNonIdentityElement(data[elementSize+nonceSize:]); err != nil {
		return nil, err
	}
	return &KE1{
		BlindedMessage:    clone(data[:elementSize]),
		ClientNonce:       clone(data[elementSize : elementSize+nonceSize]),
		ClientEphemeralPK: clone(data[elementSize+nonceSize:]),
	}, nil
}

func (m *KE2) Serialize() []byte {
	return concat(m.serializeWithoutMac(), m.ServerMAC)
}

// serializeWithoutMac is the KE2 prefix covered by the AKE transcript.
func (m *KE2) serializeWithoutMac() []byte {
	return concat(m.EvaluatedMessage, m.MaskingNonce, m.MaskedResponse, m.ServerNonce, m.ServerEphemeralPK)
}

func DeserializeKE2(data []byte) (*KE2, error) {
	if len(data) != KE2Size {
		return nil, ErrMalformed
	}
	if _, err := decodeNonIdentityElement(data[:elementSize]); err != nil {
		return nil, err
	}
	off := elementSize
	maskingNonce := data[off : off+nonceSize]
	off += nonceSize
	masked := data[off : off+maskedResponseSize]
	off += maskedResponseSize
	serverNonce := data[off : off+nonceSize]
	off += nonceSize
	ephemeral := data[off : off+elementSize]
	off += elementSize
	if _, err := decodeNonIdentityElement(ephemeral); err != nil {
		return nil, err
	}
	return &KE2{
		EvaluatedMessage:  clone(data[:elementSize]),
		MaskingNonce:      clone(maskingNonce),
		MaskedResponse:    clone(masked),
		ServerNonce:       clone(serverNonce),
		ServerEphemeralPK: clone(ephemeral),
		ServerMAC:         clone(data[off:]),
	}, nil
}

func (m *KE3) Serialize() []byte {
	return clone(m.ClientMAC)
}

func DeserializeKE3(data []byte) (*KE3, error) {
	if len(data) != KE3Size {
		return nil, ErrMalformed
	}
	return &KE3{ClientMAC: clone(data)}, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
