package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netline-isp/billing/internal/shared"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Invalid("amount must be positive"), http.StatusBadRequest},
		{shared.NotFound("invoice", 9), http.StatusNotFound},
		{fmt.Errorf("post: %w", shared.ErrUnbalancedEntry), http.StatusUnprocessableEntity},
		{shared.ErrChartNotSeeded, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.Persistence("insert", fmt.Errorf("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, nil, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestChartNotSeededCarriesHint(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, shared.ErrChartNotSeeded)
	require.Contains(t, rr.Body.String(), "seed-chart")
}

type samplePayload struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Method string `json:"method" validate:"required"`
}

func TestDecodeJSONValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":0,"method":""}`))
	var p samplePayload
	err := DecodeJSON(req, &p)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.Contains(t, err.Error(), "amount")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":5,"method":"cash"}`))
	require.NoError(t, DecodeJSON(req, &p))
	require.EqualValues(t, 5, p.Amount)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":`))
	require.ErrorIs(t, DecodeJSON(req, &p), shared.ErrInvalidInput)
}
