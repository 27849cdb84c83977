package api

import (
	"net/http"

	"SignalProof-Chain/internal/auth"
	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/job"
)

type errorPayload struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case auth.CodeUnauthorized:
		return http.StatusUnauthorized
	case auth.CodeForbidden:
		return http.StatusForbidden
	case xerrors.CodeNotFound, job.CodeJobNotFound, xerrors.CodeAccountNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, job.CodeJobConflict:
		return http.StatusConflict
	case xerrors.CodeProviderUnavailable, xerrors.CodeInitializationFailure, xerrors.CodeQueueFailure, job.CodeJobPublish:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInconsistentBatch, xerrors.CodeRootMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	payload := errorPayload{Code: string(xerrors.CodeUnknown), Message: err.Error()}
	if e, ok := xerrors.From(err); ok {
		payload.Code = string(e.Code())
		payload.Metadata = e.Metadata()
	}
	writeJSON(w, statusFor(xerrors.Code(payload.Code)), errorBody{Error: payload})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, xerrors.New(xerrors.CodeInvalidInput, message))
}
