package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{err: fmt.Errorf("x: %w", shared.ErrValidation), status: http.StatusBadRequest, typ: "validation"},
		{err: shared.NewKindError(shared.ErrNotFound, "supplier 9 not found"), status: http.StatusNotFound, typ: "reference-not-found"},
		{err: shared.NewKindError(shared.ErrInvalidState, "approve from Draft"), status: http.StatusConflict, typ: "invalid-state-transition"},
		{err: shared.NewKindError(shared.ErrPrecondition, "no email"), status: http.StatusUnprocessableEntity, typ: "precondition-failed"},
		{err: shared.ErrLockBusy, status: http.StatusConflict, typ: "conflict"},
		{err: ErrUnauthorized, status: http.StatusUnauthorized, typ: "unauthorized"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.typ, body.Type)
		require.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorConflictSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("%w: number taken", shared.ErrConflict))
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestRespondErrorFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.FieldErrors{"lines[0].quantity": "must be greater than 0"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "must be greater than 0", body.Errors["lines[0].quantity"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	require.Equal(t, "a", target.Name)
}
