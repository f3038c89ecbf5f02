package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-engine/pdc"
	"github.com/warp/lease-engine/pdc/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(NewHandler(store.NewMemory())))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func registerRequest(number, chequeDate string) RegisterPDCRequest {
	return RegisterPDCRequest{
		ChequeNumber: number,
		BankName:     "Emirates NBD",
		Amount:       2500,
		ChequeDate:   chequeDate,
		TenantRef:    "tenant-1",
	}
}

// registerOne creates a cheque via the API and returns its id.
func registerOne(t *testing.T, srv *httptest.Server, number, chequeDate string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs", registerRequest(number, chequeDate))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[PDCDTO](t, resp).ID
}

// A cheque date far in the future keeps effective status at RECEIVED.
const futureDate = "2090-01-15"

// =============================================================================
// SCHEDULE PREVIEW
// =============================================================================

func TestAPI_SchedulePreview(t *testing.T) {
	// GIVEN: Rent 10000 over 3 installments with fees
	// WHEN: Previewing the plan
	// THEN: Amounts are {3333, 3334, 3333}; fees fold into the first payment

	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/schedule/preview", SchedulePreviewRequest{
		YearlyRent:    10000,
		Installments:  3,
		DueDay:        1,
		ReferenceDate: "2026-06-01",
		Fees:          FeesDTO{SecurityDeposit: 500, AdminFee: 250},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	preview := decode[SchedulePreviewResponse](t, resp)
	require.Len(t, preview.Items, 3)
	assert.Equal(t, int64(3333), preview.Items[0].Amount)
	assert.Equal(t, int64(3334), preview.Items[1].Amount)
	assert.Equal(t, int64(3333), preview.Items[2].Amount)
	assert.Equal(t, "2026-06-01", preview.Items[0].DueDate)
	assert.Equal(t, "2026-10-01", preview.Items[1].DueDate)

	assert.Equal(t, int64(10000), preview.TotalRent)
	assert.Equal(t, 750.0, preview.FeesTotal)
	assert.Equal(t, 10750.0, preview.GrandTotal)
	assert.Equal(t, 4083.0, preview.FirstPaymentTotal)
	assert.False(t, preview.Overridden)
}

func TestAPI_SchedulePreview_Override(t *testing.T) {
	srv := newTestServer(t)

	firstTotal := 4750.0 // fees 750 + rent portion 4000
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/schedule/preview", SchedulePreviewRequest{
		YearlyRent:    10000,
		Installments:  3,
		DueDay:        1,
		ReferenceDate: "2026-06-01",
		Fees:          FeesDTO{SecurityDeposit: 500, AdminFee: 250},
		FirstTotal:    &firstTotal,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	preview := decode[SchedulePreviewResponse](t, resp)
	assert.True(t, preview.Overridden)
	assert.Equal(t, int64(4000), preview.Items[0].Amount)
	assert.Equal(t, int64(667), preview.ExtraCollected) // 4000 - 3333

	var sum int64
	for _, it := range preview.Items {
		sum += it.Amount
	}
	assert.Equal(t, int64(10000), sum, "override must not change the yearly total")
}

func TestAPI_SchedulePreview_InvalidConfig(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/schedule/preview", SchedulePreviewRequest{
		YearlyRent:   10000,
		Installments: 5,
		DueDay:       1,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	assert.Contains(t, body.Details, "installments")
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestAPI_RegisterAndGet(t *testing.T) {
	srv := newTestServer(t)

	id := registerOne(t, srv, "CHQ-001", futureDate)

	resp, err := http.Get(srv.URL + "/api/pdcs/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dto := decode[PDCDTO](t, resp)
	assert.Equal(t, "CHQ-001", dto.ChequeNumber)
	assert.Equal(t, string(pdc.StatusReceived), dto.Status)
	assert.Equal(t, 2500.0, dto.Amount)
	assert.Equal(t, 1, dto.Version)
}

func TestAPI_Get_UnknownID(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/pdcs/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Register_PastChequeDate_ReadsAsDue(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs", registerRequest("CHQ-OLD", "2020-01-01"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	dto := decode[PDCDTO](t, resp)
	assert.Equal(t, string(pdc.StatusDue), dto.Status)
	assert.Equal(t, string(pdc.StatusReceived), dto.StoredStatus)
}

func TestAPI_BulkRegister_DuplicateRejectedWithFailures(t *testing.T) {
	// GIVEN: A bulk request with an in-batch duplicate cheque number
	// WHEN: Registering
	// THEN: 409 with the failing index; nothing persisted

	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/bulk", BulkRegisterRequest{
		Items: []RegisterPDCRequest{
			registerRequest("CHQ-001", futureDate),
			registerRequest("CHQ-002", futureDate),
			registerRequest("CHQ-001", futureDate),
		},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	require.Len(t, body.Failures, 1)
	assert.Equal(t, 2, body.Failures[0].Index)
	assert.Equal(t, "CHQ-001", body.Failures[0].ChequeNumber)

	listResp, err := http.Get(srv.URL + "/api/pdcs")
	require.NoError(t, err)
	list := decode[PDCListResponse](t, listResp)
	assert.Zero(t, list.Total)
}

func TestAPI_BulkRegister_Success(t *testing.T) {
	srv := newTestServer(t)

	items := make([]RegisterPDCRequest, 4)
	for i := range items {
		items[i] = registerRequest(fmt.Sprintf("CHQ-%03d", i+1), futureDate)
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/bulk", BulkRegisterRequest{Items: items})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	list := decode[PDCListResponse](t, resp)
	assert.Equal(t, 4, list.Total)
	require.Len(t, list.Items, 4)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestAPI_DepositThenClear(t *testing.T) {
	srv := newTestServer(t)
	id := registerOne(t, srv, "CHQ-001", futureDate)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/deposit", DepositRequest{
		BankAccountRef: "acct-main",
		DepositDate:    "2026-04-02",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto := decode[PDCDTO](t, resp)
	assert.Equal(t, string(pdc.StatusDeposited), dto.Status)
	assert.Equal(t, "acct-main", dto.DepositBankRef)
	assert.Equal(t, "2026-04-02", dto.DepositedAt)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/clear", ClearRequest{
		ClearedDate: "2026-04-05",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto = decode[PDCDTO](t, resp)
	assert.Equal(t, string(pdc.StatusCleared), dto.Status)
	assert.Equal(t, 3, dto.Version)
}

func TestAPI_ClearBeforeDeposit_Conflict(t *testing.T) {
	srv := newTestServer(t)
	id := registerOne(t, srv, "CHQ-001", futureDate)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/clear", ClearRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "Invalid status transition", body.Error)
}

func TestAPI_BounceRequiresReason(t *testing.T) {
	srv := newTestServer(t)
	id := registerOne(t, srv, "CHQ-001", futureDate)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/bounce", BounceRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_BounceThenReplace(t *testing.T) {
	srv := newTestServer(t)
	id := registerOne(t, srv, "CHQ-001", futureDate)

	doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/deposit", DepositRequest{BankAccountRef: "acct"}).Body.Close()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/bounce", BounceRequest{
		Reason: "insufficient funds",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/replace", ReplaceRequest{
		ChequeNumber: "CHQ-001-R",
		BankName:     "Emirates NBD",
		Amount:       2500,
		ChequeDate:   futureDate,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[ReplaceResponse](t, resp)
	assert.Equal(t, string(pdc.StatusReplaced), out.Original.Status)
	assert.Equal(t, string(pdc.StatusReceived), out.Replacement.Status)
	assert.Equal(t, out.Replacement.ID, out.Original.ReplacedByID)
	assert.Equal(t, out.Original.ID, out.Replacement.ReplacesID)
	assert.Equal(t, "tenant-1", out.Replacement.TenantRef, "replacement inherits the tenant")
}

func TestAPI_WithdrawAndListLedger(t *testing.T) {
	srv := newTestServer(t)
	id := registerOne(t, srv, "CHQ-001", futureDate)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/withdraw", WithdrawRequest{
		WithdrawalDate:    "2026-05-01",
		Reason:            "tenant settled by transfer",
		ReplacementMethod: "bank_transfer",
		ReplacementRef:    "TXN-42",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[WithdrawResponse](t, resp)
	assert.Equal(t, string(pdc.StatusWithdrawn), out.Record.Status)
	assert.Equal(t, out.Withdrawal.ID, out.Record.WithdrawalID)
	assert.Equal(t, "2026-05-01", out.Withdrawal.WithdrawnAt)
	assert.Equal(t, "bank_transfer", out.Withdrawal.ReplacementMethod)

	listResp, err := http.Get(srv.URL + "/api/withdrawals?q=CHQ-001")
	require.NoError(t, err)
	ledger := decode[WithdrawalListResponse](t, listResp)
	require.Equal(t, 1, ledger.Total)
	assert.Equal(t, "tenant settled by transfer", ledger.Items[0].Reason)
}

func TestAPI_CancelTwice_SecondConflicts(t *testing.T) {
	srv := newTestServer(t)
	id := registerOne(t, srv, "CHQ-001", futureDate)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// LIST / SUMMARY
// =============================================================================

func TestAPI_ListFilterByStatus(t *testing.T) {
	srv := newTestServer(t)

	registerOne(t, srv, "CHQ-FUTURE", futureDate)
	doJSON(t, http.MethodPost, srv.URL+"/api/pdcs", registerRequest("CHQ-PAST", "2020-01-01")).Body.Close()

	resp, err := http.Get(srv.URL + "/api/pdcs?status=DUE")
	require.NoError(t, err)
	list := decode[PDCListResponse](t, resp)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "CHQ-PAST", list.Items[0].ChequeNumber)

	resp, err = http.Get(srv.URL + "/api/pdcs?status=RECEIVED")
	require.NoError(t, err)
	list = decode[PDCListResponse](t, resp)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "CHQ-FUTURE", list.Items[0].ChequeNumber)
}

func TestAPI_ListRejectsUnknownStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/pdcs?status=EXPLODED")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Summary(t *testing.T) {
	srv := newTestServer(t)

	registerOne(t, srv, "CHQ-001", futureDate)
	id := registerOne(t, srv, "CHQ-002", futureDate)
	doJSON(t, http.MethodPost, srv.URL+"/api/pdcs/"+id+"/deposit", DepositRequest{BankAccountRef: "acct"}).Body.Close()

	resp, err := http.Get(srv.URL + "/api/pdcs/summary")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		Statuses []StatusSummaryDTO `json:"statuses"`
	}](t, resp)

	byStatus := make(map[string]StatusSummaryDTO)
	for _, s := range body.Statuses {
		byStatus[s.Status] = s
	}
	assert.Equal(t, 1, byStatus[string(pdc.StatusReceived)].Count)
	assert.Equal(t, 2500.0, byStatus[string(pdc.StatusReceived)].Total)
	assert.Equal(t, 1, byStatus[string(pdc.StatusDeposited)].Count)
}
