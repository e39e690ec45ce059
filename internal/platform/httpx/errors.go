// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RespondError maps ledger errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var typed *shared.Error
	if !errors.As(err, &typed) {
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.CodeInternal, "")
		return
	}
	switch {
	case typed.Code == shared.CodeIdempotencyKeyReused:
		Problem(w, http.StatusConflict, "Conflict", typed.Code, typed.Error())
	case typed.Kind == shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", typed.Code, typed.Error())
	case typed.Code == shared.CodeNotFound:
		Problem(w, http.StatusNotFound, "Not Found", typed.Code, typed.Error())
	case typed.Code == shared.CodeAlreadyReversed, typed.Code == shared.CodeCannotReverseReversal:
		Problem(w, http.StatusConflict, "Conflict", typed.Code, typed.Error())
	case typed.Kind == shared.KindBusiness:
		Problem(w, http.StatusUnprocessableEntity, "Rejected", typed.Code, typed.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", typed.Code, "")
	}
}
