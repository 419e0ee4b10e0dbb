package httpx

import (
	"net/http"

	"github.com/odyssey-erp/procurehub/internal/shared"
)

// RespondError maps domain error kinds to HTTP responses. Unknown errors
// collapse to 500 without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	switch kind {
	case shared.KindValidation, shared.KindTransition:
		Fail(w, http.StatusBadRequest, string(kind), err.Error())
	case shared.KindNotFound:
		Fail(w, http.StatusNotFound, string(kind), err.Error())
	case shared.KindBudget:
		Fail(w, http.StatusUnprocessableEntity, string(kind), err.Error())
	case shared.KindConflict, shared.KindDuplicate:
		Fail(w, http.StatusConflict, string(kind), err.Error())
	default:
		Fail(w, http.StatusInternalServerError, string(shared.KindPersistence), "internal error")
	}
}
