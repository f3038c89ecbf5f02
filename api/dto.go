/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// =============================================================================
// SCHEDULE TYPES
// =============================================================================

// FeesDTO mirrors schedule.Fees. Parking fee is a single annual charge.
type FeesDTO struct {
	SecurityDeposit float64 `json:"security_deposit"`
	AdminFee        float64 `json:"admin_fee"`
	ServiceCharge   float64 `json:"service_charge"`
	ParkingFee      float64 `json:"parking_fee"`
}

// SchedulePreviewRequest asks for a payment plan. FirstTotal, when set,
// overrides the total due at the first payment (fees included).
type SchedulePreviewRequest struct {
	YearlyRent         float64  `json:"yearly_rent"`
	Installments       int      `json:"installments"`
	DueDay             int      `json:"due_day"`
	FirstPaymentMethod string   `json:"first_payment_method,omitempty"`
	LeaseType          string   `json:"lease_type,omitempty"`
	Fees               FeesDTO  `json:"fees"`
	ReferenceDate      string   `json:"reference_date,omitempty"` // YYYY-MM-DD, defaults to today
	FirstTotal         *float64 `json:"first_total,omitempty"`
}

// ScheduleItemDTO is one installment of the plan. Amount is rent-only, in
// integer currency units.
type ScheduleItemDTO struct {
	Sequence int    `json:"sequence"`
	Amount   int64  `json:"amount"`
	DueDate  string `json:"due_date"`
}

// SchedulePreviewResponse is the generated plan plus its totals.
type SchedulePreviewResponse struct {
	Items             []ScheduleItemDTO `json:"items"`
	TotalRent         int64             `json:"total_rent"`
	FeesTotal         float64           `json:"fees_total"`
	GrandTotal        float64           `json:"grand_total"`
	FirstPaymentTotal float64           `json:"first_payment_total"`
	Overridden        bool              `json:"overridden"`
	ExtraCollected    int64             `json:"extra_collected,omitempty"`
}

// =============================================================================
// PDC TYPES
// =============================================================================

// RegisterPDCRequest creates one cheque record.
type RegisterPDCRequest struct {
	ChequeNumber string  `json:"cheque_number"`
	BankName     string  `json:"bank_name"`
	Amount       float64 `json:"amount"`
	ChequeDate   string  `json:"cheque_date"` // YYYY-MM-DD
	TenantRef    string  `json:"tenant_ref,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// BulkRegisterRequest creates all cheques of a payment plan, or none.
type BulkRegisterRequest struct {
	Items []RegisterPDCRequest `json:"items"`
}

// PDCDTO represents a cheque record. Status is the effective (time-based)
// view: a RECEIVED cheque whose date has arrived reads as DUE.
type PDCDTO struct {
	ID           string  `json:"id"`
	ChequeNumber string  `json:"cheque_number"`
	BankName     string  `json:"bank_name"`
	Amount       float64 `json:"amount"`
	ChequeDate   string  `json:"cheque_date"`
	Status       string  `json:"status"`
	StoredStatus string  `json:"stored_status,omitempty"`
	TenantRef    string  `json:"tenant_ref,omitempty"`

	ReplacesID   string `json:"replaces_id,omitempty"`
	ReplacedByID string `json:"replaced_by_id,omitempty"`
	WithdrawalID string `json:"withdrawal_id,omitempty"`

	DepositBankRef string `json:"deposit_bank_ref,omitempty"`
	DepositedAt    string `json:"deposited_at,omitempty"`
	ClearedAt      string `json:"cleared_at,omitempty"`
	BouncedAt      string `json:"bounced_at,omitempty"`
	BounceReason   string `json:"bounce_reason,omitempty"`
	Notes          string `json:"notes,omitempty"`

	Version   int    `json:"version"`
	CreatedAt string `json:"created_at,omitempty"`
}

// PDCListResponse is a filtered page of records.
type PDCListResponse struct {
	Items []PDCDTO `json:"items"`
	Total int      `json:"total"`
}

// ReplaceResponse returns both sides of a replace transition.
type ReplaceResponse struct {
	Original    PDCDTO `json:"original"`
	Replacement PDCDTO `json:"replacement"`
}

// WithdrawResponse returns the updated record and its ledger entry.
type WithdrawResponse struct {
	Record     PDCDTO        `json:"record"`
	Withdrawal WithdrawalDTO `json:"withdrawal"`
}

// =============================================================================
// TRANSITION REQUESTS
// =============================================================================

type DepositRequest struct {
	BankAccountRef string `json:"bank_account_ref"`
	DepositDate    string `json:"deposit_date,omitempty"` // defaults to today
}

type ClearRequest struct {
	ClearedDate string `json:"cleared_date,omitempty"`
}

type BounceRequest struct {
	Reason     string `json:"reason"`
	BounceDate string `json:"bounce_date,omitempty"`
}

// ReplaceRequest carries the new cheque covering a bounced one.
type ReplaceRequest struct {
	ChequeNumber string  `json:"cheque_number"`
	BankName     string  `json:"bank_name"`
	Amount       float64 `json:"amount"`
	ChequeDate   string  `json:"cheque_date"`
	Notes        string  `json:"notes,omitempty"`
}

type WithdrawRequest struct {
	WithdrawalDate    string `json:"withdrawal_date,omitempty"`
	Reason            string `json:"reason"`
	ReplacementMethod string `json:"replacement_method,omitempty"`
	ReplacementRef    string `json:"replacement_ref,omitempty"`
}

// =============================================================================
// LEDGER / SUMMARY TYPES
// =============================================================================

// WithdrawalDTO is one withdrawal ledger entry.
type WithdrawalDTO struct {
	ID                string `json:"id"`
	PDCID             string `json:"pdc_id"`
	ChequeNumber      string `json:"cheque_number"`
	TenantRef         string `json:"tenant_ref,omitempty"`
	WithdrawnAt       string `json:"withdrawn_at"`
	Reason            string `json:"reason"`
	ReplacementMethod string `json:"replacement_method,omitempty"`
	ReplacementRef    string `json:"replacement_ref,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// WithdrawalListResponse is a filtered, sorted ledger page.
type WithdrawalListResponse struct {
	Items []WithdrawalDTO `json:"items"`
	Total int             `json:"total"`
}

// StatusSummaryDTO is one row of the dashboard aggregate.
type StatusSummaryDTO struct {
	Status string  `json:"status"`
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
}

// =============================================================================
// ERRORS
// =============================================================================

// BatchFailureDTO is one rejected bulk-registration item.
type BatchFailureDTO struct {
	Index        int    `json:"index"`
	ChequeNumber string `json:"cheque_number"`
	Reason       string `json:"reason"`
}

type ErrorResponse struct {
	Error    string            `json:"error"`
	Details  string            `json:"details,omitempty"`
	Failures []BatchFailureDTO `json:"failures,omitempty"`
}
