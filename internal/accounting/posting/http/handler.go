package postinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// ActorHeader carries the caller's user id; BranchHeader its branch.
const (
	ActorHeader  = "X-Actor-ID"
	BranchHeader = "X-Branch-ID"
)

const dateLayout = "2006-01-02"

type postingService interface {
	PostTransaction(ctx context.Context, req posting.Request) (posting.Result, error)
	ReverseTransaction(ctx context.Context, req posting.ReversalRequest) (posting.Result, error)
	GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error)
}

type Handler struct {
	service  postingService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service postingService) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes registers the posting endpoints under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/postings", h.post)
	r.Post("/postings/{id}/reversal", h.reverse)
	r.Get("/journal-entries/{id}", h.getEntry)
}

type seedEntryRequest struct {
	GLAccountCode string          `json:"gl_account_code" validate:"omitempty,max=64"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Narration     string          `json:"narration" validate:"max=255"`
}

type postingRequest struct {
	IdempotencyKey string             `json:"idempotency_key" validate:"required,max=128"`
	PostingType    string             `json:"posting_type" validate:"required,max=64"`
	SourceType     string             `json:"source_type" validate:"max=64"`
	SourceID       string             `json:"source_id" validate:"max=128"`
	BranchID       int64              `json:"branch_id" validate:"required,gt=0"`
	PostingDate    string             `json:"posting_date" validate:"required,datetime=2006-01-02"`
	Currency       string             `json:"currency" validate:"required,len=3,uppercase"`
	Narration      string             `json:"narration" validate:"max=255"`
	Entries        []seedEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type reversalRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=128"`
	PostingDate    string `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
	Narration      string `json:"narration" validate:"max=255"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var body postingRequest
	if !h.decode(w, r, &body) {
		return
	}
	date, _ := time.Parse(dateLayout, body.PostingDate)
	req := posting.Request{
		IdempotencyKey: body.IdempotencyKey,
		PostingType:    body.PostingType,
		SourceType:     body.SourceType,
		SourceID:       body.SourceID,
		BranchID:       body.BranchID,
		PostingDate:    date,
		Currency:       body.Currency,
		Narration:      body.Narration,
		Actor:          actorFrom(r),
	}
	for _, e := range body.Entries {
		req.Entries = append(req.Entries, posting.SeedEntry{
			GLAccountCode: e.GLAccountCode,
			Debit:         e.Debit,
			Credit:        e.Credit,
			Narration:     e.Narration,
		})
	}
	result, err := h.service.PostTransaction(r.Context(), req)
	h.respond(w, result, err)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("id", shared.CodeInvalidRequest, "invalid entry id"))
		return
	}
	var body reversalRequest
	if !h.decode(w, r, &body) {
		return
	}
	req := posting.ReversalRequest{
		IdempotencyKey:  body.IdempotencyKey,
		OriginalEntryID: id,
		Narration:       body.Narration,
		Actor:           actorFrom(r),
	}
	if body.PostingDate != "" {
		req.PostingDate, _ = time.Parse(dateLayout, body.PostingDate)
	}
	result, err := h.service.ReverseTransaction(r.Context(), req)
	h.respond(w, result, err)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("id", shared.CodeInvalidRequest, "invalid entry id"))
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, shared.Validation("body", shared.CodeInvalidRequest, "malformed JSON body"))
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			httpx.RespondError(w, shared.Validation(fieldName(fe), shared.CodeInvalidRequest, fmt.Sprintf("failed %q rule", fe.Tag())))
			return false
		}
		httpx.RespondError(w, shared.Validation("body", shared.CodeInvalidRequest, err.Error()))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, result posting.Result, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.KindOf(err) == "" || shared.KindOf(err) == shared.KindIntegrity {
		h.logger.Error("posting request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorFrom(r *http.Request) posting.Actor {
	actor := posting.Actor{UserID: strings.TrimSpace(r.Header.Get(ActorHeader))}
	if branch, err := strconv.ParseInt(r.Header.Get(BranchHeader), 10, 64); err == nil {
		actor.BranchID = branch
	}
	return actor
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "body"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
