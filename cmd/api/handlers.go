package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/lotledger/pkg/ledger"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/shopspring/decimal"
)

const monthLayout = "2006-01"

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return s.validate.Struct(dst)
}

// fail writes err, treating malformed input as 400.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeError(w, r, err)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", errBadRequest, mux.Vars(r)["id"])
	}
	return id, nil
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", errBadRequest, value)
	}
	return &t, nil
}

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		text = strings.TrimSpace(quoted)
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ledger.ErrMalformedPaymentAmount, text)
	}
	return amount, nil
}

func bankDetails(name, account string) *models.BankDetails {
	if name == "" && account == "" {
		return nil
	}
	return &models.BankDetails{BankName: name, AccountRef: account}
}

// ---- lots

type lotRequest struct {
	Block      string          `json:"block" validate:"required"`
	Number     string          `json:"number" validate:"required"`
	Dimensions string          `json:"dimensions"`
	CashPrice  decimal.Decimal `json:"cash_price"`
	City       string          `json:"city"`
	Parish     string          `json:"parish"`
	Province   string          `json:"province"`
	Canton     string          `json:"canton"`
}

func (req lotRequest) input() ledger.LotInput {
	return ledger.LotInput{
		Block:      req.Block,
		Number:     req.Number,
		Dimensions: req.Dimensions,
		CashPrice:  req.CashPrice,
		City:       req.City,
		Parish:     req.Parish,
		Province:   req.Province,
		Canton:     req.Canton,
	}
}

func (s *Server) createLotHandler(w http.ResponseWriter, r *http.Request) {
	var req lotRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	lot, err := s.ledger.CreateLot(r.Context(), req.input(), recordedBy(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, lot)
}

func (s *Server) listLotsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.LotStatus(strings.ToUpper(r.URL.Query().Get("status")))
	lots, err := s.ledger.ListLots(r.Context(), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lots)
}

func (s *Server) getLotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lot, err := s.ledger.GetLot(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lot)
}

func (s *Server) updateLotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req lotRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	lot, err := s.ledger.UpdateLot(r.Context(), id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lot)
}

// ---- clients and sales

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.ListClients(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, clients)
}

type clientRequest struct {
	NationalID string `json:"national_id" validate:"required"`
	FirstNames string `json:"first_names" validate:"required"`
	LastNames  string `json:"last_names" validate:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email" validate:"omitempty,email"`
	Address    string `json:"address"`
}

type saleRequest struct {
	LotID        string          `json:"lot_id" validate:"required,uuid"`
	Client       clientRequest   `json:"client"`
	ContractDate string          `json:"contract_date" validate:"omitempty,datetime=2006-01-02"`
	FirstDueDate string          `json:"first_due_date" validate:"omitempty,datetime=2006-01-02"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	DownPayment  decimal.Decimal `json:"down_payment"`
	Term         int             `json:"term" validate:"gte=0"`
	Method       string          `json:"method" validate:"omitempty,oneof=CASH TRANSFER"`
	BankName     string          `json:"bank_name"`
	AccountRef   string          `json:"account_ref"`
	EvidenceRef  string          `json:"evidence_ref"`
}

func (s *Server) createSaleHandler(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	contractDate, err := parseDate(req.ContractDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	firstDue, err := parseDate(req.FirstDueDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	client := ledger.ClientInput{
		NationalID: req.Client.NationalID,
		FirstNames: req.Client.FirstNames,
		LastNames:  req.Client.LastNames,
		Phone:      req.Client.Phone,
		Email:      req.Client.Email,
		Address:    req.Client.Address,
	}
	sale := ledger.SaleRequest{
		LotID:        uuid.MustParse(req.LotID),
		Client:       client,
		FirstDueDate: firstDue,
		FinalPrice:   req.FinalPrice,
		DownPayment:  req.DownPayment,
		Term:         req.Term,
		Method:       models.PaymentMethod(req.Method),
		Bank:         bankDetails(req.BankName, req.AccountRef),
		EvidenceRef:  req.EvidenceRef,
		RecordedBy:   recordedBy(r),
	}
	if contractDate != nil {
		sale.ContractDate = *contractDate
	}

	contract, err := s.ledger.CreateSale(r.Context(), sale)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, contract)
}

// ---- contracts

func (s *Server) listContractsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ContractFilter{State: models.ContractState(strings.ToUpper(q.Get("state")))}
	if v := q.Get("delinquent"); v != "" {
		delinquent, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "delinquent must be true or false")
			return
		}
		filter.InDelinquency = &delinquent
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	contracts, err := s.ledger.ListContracts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, contracts)
}

func (s *Server) statementHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.ledger.Statement(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snap, err := s.ledger.Snapshot(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type scheduleRequest struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) generateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req scheduleRequest
	if r.ContentLength != 0 {
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	generated, err := s.ledger.GenerateSchedule(r.Context(), id, start)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"generated": generated})
}

func (s *Server) refreshDelinquencyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.RefreshDelinquency(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	Amount      json.RawMessage `json:"amount" validate:"required"`
	Method      string          `json:"method" validate:"required,oneof=CASH TRANSFER"`
	BankName    string          `json:"bank_name"`
	AccountRef  string          `json:"account_ref"`
	EvidenceRef string          `json:"evidence_ref"`
	Note        string          `json:"note"`
}

func (s *Server) applyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req paymentRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	payment, err := s.ledger.ApplyPayment(r.Context(), ledger.PaymentRequest{
		ContractID:  id,
		Amount:      amount,
		Method:      models.PaymentMethod(req.Method),
		Bank:        bankDetails(req.BankName, req.AccountRef),
		EvidenceRef: req.EvidenceRef,
		Note:        req.Note,
		RecordedBy:  recordedBy(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, payment)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payments, err := s.ledger.Payments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payments)
}

func (s *Server) closeContractHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.ledger.CloseContract)
}

func (s *Server) cancelContractHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.ledger.CancelContract)
}

func (s *Server) voidContractHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.ledger.VoidContract)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*models.Contract, error)) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	contract, err := fn(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, contract)
}

func (s *Server) returnContractHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.ledger.ReturnContract(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) toggleExemptionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	inst, err := s.ledger.TogglePenaltyExemption(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// ---- policy and reports

func (s *Server) getPolicyHandler(w http.ResponseWriter, r *http.Request) {
	policy, err := s.ledger.Policy(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, policy)
}

func (s *Server) updatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	var policy models.DelinquencyPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	saved, err := s.ledger.UpdatePolicy(r.Context(), policy)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	dash, err := s.ledger.Dashboard(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

func (s *Server) monthlyReportHandler(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		asOf = *parsed
	}
	rep, err := s.ledger.MonthlyReport(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) generalReportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(monthLayout, q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "from must be a month like 2024-01")
		return
	}
	to, err := time.Parse(monthLayout, q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "to must be a month like 2024-12")
		return
	}
	activeOnly, _ := strconv.ParseBool(q.Get("active_only"))

	rep, err := s.ledger.GeneralReport(r.Context(), from, to, activeOnly)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rep)
}
