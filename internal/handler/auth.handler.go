package handler

import (
	"errors"
	"net/http"

	"github.com/RogueElectron/Cypher/internal/opaque"
	"github.com/RogueElectron/Cypher/internal/usecase"
	"github.com/RogueElectron/Cypher/pkg/response"
	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

type AuthHandler struct {
	authUC *usecase.AuthUsecase
}

func NewAuthHandler(authUC *usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{authUC: authUC}
}

func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"service": "auth", "state": "ok"})
}

func (h *AuthHandler) HandleRegisterInit(w http.ResponseWriter, r *http.Request) {
	var req RegisterInitRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	request, ok := decodeField(req.RegistrationRequest)
	if req.Username == "" || !ok {
		response.Error(w, http.StatusBadRequest, "Missing required fields: username and registration_request")
		return
	}

	resp, err := h.authUC.RegisterInit(r.Context(), req.Username, request)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"registration_response": encodeField(resp),
	})
}

func (h *AuthHandler) HandleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	var req RegisterFinishRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	record, ok := decodeField(req.Record)
	if req.Username == "" || !ok {
		response.Error(w, http.StatusBadRequest, "Missing required fields: username and registration_record")
		return
	}

	if err := h.authUC.RegisterFinish(r.Context(), req.Username, record); err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Registration completed successfully",
		"next":    "totp_setup",
	})
}

func (h *AuthHandler) HandleLoginInit(w http.ResponseWriter, r *http.Request) {
	var req LoginInitRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ke1, ok := decodeField(req.KE1)
	if req.Username == "" || !ok {
		response.Error(w, http.StatusBadRequest, "Missing required fields: username and ke1")
		return
	}

	ke2, err := h.authUC.LoginInit(r.Context(), req.Username, ke1)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"ke2": encodeField(ke2),
	})
}

func (h *AuthHandler) HandleLoginFinish(w http.ResponseWriter, r *http.Request) {
	var req LoginFinishRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ke3, ok := decodeField(req.KE3)
	if req.Username == "" || !ok {
		response.Error(w, http.StatusBadRequest, "Missing required fields: username and ke3")
		return
	}

	intermediate, err := h.authUC.LoginFinish(r.Context(), req.Username, ke3)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"message":            "Login successful",
		"intermediate_token": intermediate,
		"next":               "totp_verify",
	})
}

func (h *AuthHandler) HandleTotpSetup(w http.ResponseWriter, r *http.Request) {
	var req TotpSetupRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" {
		response.Error(w, http.StatusBadRequest, "Username is required")
		return
	}

	enrollment, err := h.authUC.TotpSetup(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"secret":           enrollment.Secret,
		"qr_code":          enrollment.QRCodeDataURL,
		"provisioning_uri": enrollment.ProvisioningURI,
	})
}

func (h *AuthHandler) HandleTotpVerifySetup(w http.ResponseWriter, r *http.Request) {
	var req TotpVerifySetupRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Code == "" {
		response.Error(w, http.StatusBadRequest, "Username and code are required")
		return
	}

	if err := h.authUC.TotpVerifySetup(r.Context(), req.Username, req.Code); err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"message": "TOTP verification successful",
	})
}

func (h *AuthHandler) HandleTotpVerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req TotpVerifyLoginRequest
	if err := decodeRequestBody(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Code == "" {
		response.Error(w, http.StatusBadRequest, "Username and code are required")
		return
	}
	if req.IntermediateToken == "" {
		response.Error(w, http.StatusUnauthorized, "No authentication token found")
		return
	}

	sess, err := h.authUC.TotpVerifyLogin(r.Context(), req.Username, req.Code, req.IntermediateToken)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"message":       "TOTP login verification successful",
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"expires_in":    sess.ExpiresIn,
	})
}

// writeError maps usecase errors onto the HTTP contract.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrUserAlreadyExists):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, xerrors.ErrUserNotRegistered):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, xerrors.ErrAuthFailed):
		response.Error(w, http.StatusUnauthorized, "Authentication failed")
	case errors.Is(err, xerrors.ErrAccountInactive):
		response.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, xerrors.ErrNoActiveSession),
		errors.Is(err, xerrors.ErrInvalidTOTPCode),
		errors.Is(err, xerrors.ErrNoTOTPSecret),
		errors.Is(err, xerrors.ErrTOTPNotEnabled):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, opaque.ErrMalformed),
		errors.Is(err, opaque.ErrInvalidPoint),
		errors.Is(err, opaque.ErrIdentityPoint):
		response.Error(w, http.StatusBadRequest, "Malformed protocol message")
	case errors.Is(err, xerrors.ErrUpstreamUnavailable):
		response.Error(w, http.StatusBadGateway, "Contact server admin")
	default:
		response.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
