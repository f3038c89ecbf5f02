/*
handlers.go - HTTP API handlers for the lease payment engine

PURPOSE:
  Exposes the schedule generator and the PDC lifecycle via REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  Schedule:
    POST /api/schedule/preview        Generate a payment plan (optional override)

  PDCs:
    POST /api/pdcs                    Register a cheque
    POST /api/pdcs/bulk               Register a plan's cheques (all-or-nothing)
    GET  /api/pdcs                    List/filter records
    GET  /api/pdcs/summary            Status counts + amount totals
    GET  /api/pdcs/{id}               Get one record
    POST /api/pdcs/{id}/deposit       Transition operations
    POST /api/pdcs/{id}/clear
    POST /api/pdcs/{id}/bounce
    POST /api/pdcs/{id}/replace
    POST /api/pdcs/{id}/withdraw
    POST /api/pdcs/{id}/cancel

  Withdrawals:
    GET  /api/withdrawals             Ledger read model

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Config/validation errors, malformed input
  - 404: Unknown record id
  - 409: Invalid transition, version conflict, duplicate cheque numbers
  - 500: Storage errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/lease-engine/pdc"
	"github.com/warp/lease-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Machine *pdc.Machine
	Store   pdc.Store
}

// NewHandler creates a new handler over the given registry store.
func NewHandler(store pdc.Store) *Handler {
	return &Handler{
		Machine: pdc.NewMachine(store),
		Store:   store,
	}
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// PreviewSchedule generates a payment plan.
// POST /api/schedule/preview
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req SchedulePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg := schedule.Config{
		YearlyRent:         decimal.NewFromFloat(req.YearlyRent),
		Installments:       req.Installments,
		FirstPaymentMethod: schedule.Method(req.FirstPaymentMethod),
		DueDay:             req.DueDay,
		LeaseType:          req.LeaseType,
		Fees: schedule.Fees{
			SecurityDeposit: decimal.NewFromFloat(req.Fees.SecurityDeposit),
			AdminFee:        decimal.NewFromFloat(req.Fees.AdminFee),
			ServiceCharge:   decimal.NewFromFloat(req.Fees.ServiceCharge),
			ParkingFee:      decimal.NewFromFloat(req.Fees.ParkingFee),
		},
	}

	ref := schedule.Today()
	if req.ReferenceDate != "" {
		parsed, err := schedule.ParseDate(req.ReferenceDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reference_date format (use YYYY-MM-DD)", err)
			return
		}
		ref = parsed
	}

	plan, err := schedule.NewPlan(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule config", err)
		return
	}
	if req.FirstTotal != nil {
		if err := plan.ApplyOverride(decimal.NewFromFloat(*req.FirstTotal)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid first payment override", err)
			return
		}
	}

	items, err := plan.Generate(ref)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to generate schedule", err)
		return
	}

	summary := schedule.Summarize(cfg, items)
	dtos := make([]ScheduleItemDTO, len(items))
	for i, it := range items {
		dtos[i] = ScheduleItemDTO{
			Sequence: it.Sequence,
			Amount:   it.Amount,
			DueDate:  it.DueDate.String(),
		}
	}

	feesTotal, _ := summary.FeesTotal.Float64()
	grandTotal, _ := summary.GrandTotal.Float64()
	firstTotal, _ := summary.FirstPaymentTotal.Float64()
	writeJSON(w, http.StatusOK, SchedulePreviewResponse{
		Items:             dtos,
		TotalRent:         summary.TotalRent,
		FeesTotal:         feesTotal,
		GrandTotal:        grandTotal,
		FirstPaymentTotal: firstTotal,
		Overridden:        plan.Overridden(),
		ExtraCollected:    plan.ExtraCollected(),
	})
}

// =============================================================================
// PDC REGISTRATION HANDLERS
// =============================================================================

// RegisterPDC creates a single cheque record in RECEIVED state.
// POST /api/pdcs
func (h *Handler) RegisterPDC(w http.ResponseWriter, r *http.Request) {
	var req RegisterPDCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reg, err := toRegistration(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid registration", err)
		return
	}

	rec, err := h.Machine.Register(r.Context(), reg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPDCDTO(rec, time.Now().UTC()))
}

// RegisterBulk creates all cheques of a payment plan, or none.
// POST /api/pdcs/bulk
func (h *Handler) RegisterBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "Empty batch", nil)
		return
	}

	regs := make([]pdc.Registration, len(req.Items))
	for i, item := range req.Items {
		reg, err := toRegistration(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid registration", err)
			return
		}
		regs[i] = reg
	}

	recs, err := h.Machine.RegisterBulk(r.Context(), regs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	dtos := make([]PDCDTO, len(recs))
	for i := range recs {
		dtos[i] = toPDCDTO(&recs[i], now)
	}
	writeJSON(w, http.StatusCreated, PDCListResponse{Items: dtos, Total: len(dtos)})
}

// =============================================================================
// PDC QUERY HANDLERS
// =============================================================================

// GetPDC returns a single record.
// GET /api/pdcs/{id}
func (h *Handler) GetPDC(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPDCDTO(rec, time.Now().UTC()))
}

// ListPDCs returns a filtered page of records.
// GET /api/pdcs?status=&tenant=&bank=&from=&to=&limit=&offset=
func (h *Handler) ListPDCs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pdc.ListFilter{
		Status:    pdc.Status(q.Get("status")),
		TenantRef: q.Get("tenant"),
		BankName:  q.Get("bank"),
		Limit:     intParam(q.Get("limit"), 50),
		Offset:    intParam(q.Get("offset"), 0),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown status "+string(f.Status), nil)
		return
	}
	var err error
	if f.ChequeDateFrom, err = timeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	if f.ChequeDateTo, err = timeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	recs, total, err := h.Store.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pdcs", err)
		return
	}

	now := time.Now().UTC()
	dtos := make([]PDCDTO, len(recs))
	for i := range recs {
		dtos[i] = toPDCDTO(&recs[i], now)
	}
	writeJSON(w, http.StatusOK, PDCListResponse{Items: dtos, Total: total})
}

// Summary returns status counts and sum-of-amount totals. Read-only
// dashboard feed.
// GET /api/pdcs/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sums, err := h.Store.Summary(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize pdcs", err)
		return
	}

	dtos := make([]StatusSummaryDTO, len(sums))
	for i, s := range sums {
		total, _ := s.Total.Float64()
		dtos[i] = StatusSummaryDTO{Status: string(s.Status), Count: s.Count, Total: total}
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": dtos})
}

// =============================================================================
// TRANSITION HANDLERS
// =============================================================================

// Deposit marks a cheque as handed to the bank.
// POST /api/pdcs/{id}/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := dateOrToday(req.DepositDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid deposit_date (use YYYY-MM-DD)", err)
		return
	}

	rec, err := h.Machine.Deposit(r.Context(), chi.URLParam(r, "id"), req.BankAccountRef, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPDCDTO(rec, time.Now().UTC()))
}

// Clear confirms a deposited cheque settled.
// POST /api/pdcs/{id}/clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := dateOrToday(req.ClearedDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cleared_date (use YYYY-MM-DD)", err)
		return
	}

	rec, err := h.Machine.Clear(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPDCDTO(rec, time.Now().UTC()))
}

// Bounce records a bank rejection.
// POST /api/pdcs/{id}/bounce
func (h *Handler) Bounce(w http.ResponseWriter, r *http.Request) {
	var req BounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Bounce reason is required", nil)
		return
	}
	date, err := dateOrToday(req.BounceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bounce_date (use YYYY-MM-DD)", err)
		return
	}

	rec, err := h.Machine.Bounce(r.Context(), chi.URLParam(r, "id"), req.Reason, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPDCDTO(rec, time.Now().UTC()))
}

// Replace issues a new cheque covering a bounced one.
// POST /api/pdcs/{id}/replace
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	reg, err := toRegistration(RegisterPDCRequest{
		ChequeNumber: req.ChequeNumber,
		BankName:     req.BankName,
		Amount:       req.Amount,
		ChequeDate:   req.ChequeDate,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid replacement cheque", err)
		return
	}

	original, replacement, err := h.Machine.Replace(r.Context(), chi.URLParam(r, "id"), reg)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, ReplaceResponse{
		Original:    toPDCDTO(original, now),
		Replacement: toPDCDTO(replacement, now),
	})
}

// Withdraw returns a cheque to the payer and appends the ledger entry.
// POST /api/pdcs/{id}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Withdrawal reason is required", nil)
		return
	}
	date, err := dateOrToday(req.WithdrawalDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid withdrawal_date (use YYYY-MM-DD)", err)
		return
	}

	rec, wr, err := h.Machine.Withdraw(r.Context(), chi.URLParam(r, "id"),
		date, req.Reason, req.ReplacementMethod, req.ReplacementRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{
		Record:     toPDCDTO(rec, time.Now().UTC()),
		Withdrawal: toWithdrawalDTO(wr),
	})
}

// Cancel voids an undeposited cheque.
// POST /api/pdcs/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Machine.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPDCDTO(rec, time.Now().UTC()))
}

// =============================================================================
// WITHDRAWAL LEDGER HANDLERS
// =============================================================================

// ListWithdrawals returns a filtered, sorted page of the ledger.
// GET /api/withdrawals?reason=&from=&to=&q=&sort=&desc=&limit=&offset=
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := pdc.WithdrawalFilter{
		Reason:   q.Get("reason"),
		Search:   q.Get("q"),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("desc") == "true",
		Limit:    intParam(q.Get("limit"), 50),
		Offset:   intParam(q.Get("offset"), 0),
	}
	var err error
	if f.From, err = timeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	if f.To, err = timeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	records, total, err := h.Store.ListWithdrawals(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list withdrawals", err)
		return
	}

	dtos := make([]WithdrawalDTO, len(records))
	for i := range records {
		dtos[i] = toWithdrawalDTO(&records[i])
	}
	writeJSON(w, http.StatusOK, WithdrawalListResponse{Items: dtos, Total: total})
}

// =============================================================================
// CONVERSION / ERROR HELPERS
// =============================================================================

func toRegistration(req RegisterPDCRequest) (pdc.Registration, error) {
	chequeDate, err := time.Parse("2006-01-02", req.ChequeDate)
	if err != nil {
		return pdc.Registration{}, err
	}
	return pdc.Registration{
		ChequeNumber: req.ChequeNumber,
		BankName:     req.BankName,
		Amount:       decimal.NewFromFloat(req.Amount),
		ChequeDate:   chequeDate.UTC(),
		TenantRef:    req.TenantRef,
		Notes:        req.Notes,
	}, nil
}

func toPDCDTO(rec *pdc.Record, asOf time.Time) PDCDTO {
	amount, _ := rec.Amount.Float64()
	dto := PDCDTO{
		ID:             rec.ID,
		ChequeNumber:   rec.ChequeNumber,
		BankName:       rec.BankName,
		Amount:         amount,
		ChequeDate:     rec.ChequeDate.Format("2006-01-02"),
		Status:         string(rec.EffectiveStatus(asOf)),
		StoredStatus:   string(rec.Status),
		TenantRef:      rec.TenantRef,
		ReplacesID:     rec.ReplacesID,
		ReplacedByID:   rec.ReplacedByID,
		WithdrawalID:   rec.WithdrawalID,
		DepositBankRef: rec.DepositBankRef,
		BounceReason:   rec.BounceReason,
		Notes:          rec.Notes,
		Version:        rec.Version,
		CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.DepositedAt != nil {
		dto.DepositedAt = rec.DepositedAt.Format("2006-01-02")
	}
	if rec.ClearedAt != nil {
		dto.ClearedAt = rec.ClearedAt.Format("2006-01-02")
	}
	if rec.BouncedAt != nil {
		dto.BouncedAt = rec.BouncedAt.Format("2006-01-02")
	}
	return dto
}

func toWithdrawalDTO(wr *pdc.WithdrawalRecord) WithdrawalDTO {
	return WithdrawalDTO{
		ID:                wr.ID,
		PDCID:             wr.PDCID,
		ChequeNumber:      wr.ChequeNumber,
		TenantRef:         wr.TenantRef,
		WithdrawnAt:       wr.WithdrawnAt.Format("2006-01-02"),
		Reason:            wr.Reason,
		ReplacementMethod: wr.ReplacementMethod,
		ReplacementRef:    wr.ReplacementRef,
		CreatedAt:         wr.CreatedAt.Format(time.RFC3339),
	}
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func timeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func dateOrToday(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var batchErr *pdc.BatchError
	switch {
	case errors.As(err, &batchErr):
		failures := make([]BatchFailureDTO, len(batchErr.Failures))
		for i, f := range batchErr.Failures {
			failures[i] = BatchFailureDTO{Index: f.Index, ChequeNumber: f.ChequeNumber, Reason: f.Reason}
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:    "Bulk registration rejected",
			Failures: failures,
		})
	case pdc.IsNotFound(err):
		writeError(w, http.StatusNotFound, "PDC record not found", err)
	case errors.Is(err, pdc.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invalid status transition", err)
	case pdc.IsConflict(err):
		writeError(w, http.StatusConflict, "Concurrent transition conflict", err)
	case errors.Is(err, pdc.ErrDuplicateCheque):
		writeError(w, http.StatusConflict, "Duplicate cheque number", err)
	case errors.Is(err, pdc.ErrValidation):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
