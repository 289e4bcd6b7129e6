package ar

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/netline-isp/billing/internal/customers"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes(r)
	return r, f
}

func serve(router http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGenerateHandler(t *testing.T) {
	router, f := newTestRouter(t)
	f.seedJanuary()

	rr := serve(router, http.MethodPost, "/billing/generate", `{"periodStart":"2024-01-01","periodEnd":"2024-01-31"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var result GenerateResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	require.Equal(t, 2, result.Generated)

	rr = serve(router, http.MethodPost, "/billing/generate", `{"periodStart":"2024-01-01"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(router, http.MethodPost, "/billing/generate", `{"periodStart":"2024-01-01","periodEnd":"2024-01-31","billingCycle":"daily"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodGet, "/invoices?status=issued", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var invoices []Invoice
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&invoices))
	require.Len(t, invoices, 2)

	rr = serve(router, http.MethodGet, "/invoices?periodStart=01-01-2024", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPaymentHandlerFlow(t *testing.T) {
	router, f := newTestRouter(t)
	f.directory.addCustomer(7, nil, time.Now(), customers.StatusActive)
	inv := f.issue(t, 7, 1000)
	id := strconv.FormatInt(inv.ID, 10)

	body := `{"invoiceId":` + id + `,"customerId":7,"amount":400,"method":"mobile_money","collectedBy":"desk"}`
	rr := serve(router, http.MethodPost, "/payments", body, IdempotencyHeader, "rcpt-1")
	require.Equal(t, http.StatusCreated, rr.Code)
	var result PaymentResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	require.Equal(t, StatusPartial, result.Invoice.Status)
	require.EqualValues(t, 600, result.Invoice.Outstanding())

	rr = serve(router, http.MethodPost, "/payments", body, IdempotencyHeader, "rcpt-1")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(router, http.MethodPost, "/payments", `{"invoiceId":`+id+`,"customerId":7,"amount":0,"method":"cash","collectedBy":"desk"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(router, http.MethodPost, "/payments", `{"invoiceId":`+id+`,"customerId":7,"amount":5,"method":"cheque","collectedBy":"desk"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = serve(router, http.MethodPost, "/payments", `{"invoiceId":999,"customerId":7,"amount":5,"method":"cash","collectedBy":"desk"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(router, http.MethodGet, "/payments?invoiceId="+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var payments []Payment
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&payments))
	require.Len(t, payments, 1)

	rr = serve(router, http.MethodGet, "/payments/"+strconv.FormatInt(payments[0].ID, 10), "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = serve(router, http.MethodGet, "/payments/abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvoiceMutationHandlers(t *testing.T) {
	router, f := newTestRouter(t)
	inv := f.issue(t, 7, 1000)
	path := "/invoices/" + strconv.FormatInt(inv.ID, 10)

	rr := serve(router, http.MethodPatch, path+"/adjustment", `{"discountAmount":100,"penaltyAmount":50,"adjustedBy":"ops"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var adjusted Invoice
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&adjusted))
	require.EqualValues(t, 950, adjusted.TotalAmount)

	rr = serve(router, http.MethodPatch, path+"/adjustment", `{"discountAmount":-5}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodPost, path+"/void", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = serve(router, http.MethodPost, path+"/void", `{"reason":"again"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched Invoice
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&fetched))
	require.Equal(t, StatusVoid, fetched.Status)

	rr = serve(router, http.MethodGet, "/invoices/999", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMarkOverdueHandler(t *testing.T) {
	router, f := newTestRouter(t)
	f.directory.addCustomer(7, nil, time.Now(), customers.StatusActive)
	f.issue(t, 7, 1000)
	f.now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rr := serve(router, http.MethodPost, "/billing/mark-overdue", `{"suspendAccounts":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var result MarkOverdueResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	require.Equal(t, 1, result.MarkedOverdue)
	require.Equal(t, 1, result.Suspended)

	rr = serve(router, http.MethodPost, "/billing/mark-overdue", "")
	require.Equal(t, http.StatusOK, rr.Code)
}
