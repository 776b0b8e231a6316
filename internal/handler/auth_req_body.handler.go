package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// Binary protocol fields travel as base64 strings inside JSON bodies.

type RegisterInitRequest struct {
	Username            string `json:"username"`
	RegistrationRequest string `json:"registration_request"`
}

type RegisterFinishRequest struct {
	Username string `json:"username"`
	Record   string `json:"registration_record"`
}

type LoginInitRequest struct {
	Username string `json:"username"`
	KE1      string `json:"ke1"`
}

type LoginFinishRequest struct {
	Username string `json:"username"`
	KE3      string `json:"ke3"`
}

type TotpSetupRequest struct {
	Username string `json:"username"`
}

type TotpVerifySetupRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type TotpVerifyLoginRequest struct {
	Username          string `json:"username"`
	Code              string `json:"code"`
	IntermediateToken string `json:"intermediate_token"`
}

func decodeRequestBody(r *http.Request, target interface{}) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func decodeField(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func encodeField(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
