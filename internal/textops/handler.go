package textops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/governance/quota"
	"github.com/textgate/textgate/internal/middleware"
	"github.com/textgate/textgate/internal/users"
)

const (
	minSummaryInput  = 50
	defaultMaxLength = 200
	maxBulkTexts     = 10
)

// UsageRecorder stores one usage record per completed action.
type UsageRecorder interface {
	Record(ctx context.Context, e quota.Entry) error
}

// QuotaGate admits a batch of n actions at once. Batch endpoints cannot sit
// behind the per-request quota middleware because n is only known after the
// body is decoded.
type QuotaGate interface {
	Acquire(ctx context.Context, user *users.User, ip string, action quota.Action, n int) (quota.Usage, func(), error)
}

type Handler struct {
	summarizer Summarizer
	translator Translator
	recorder   UsageRecorder
	gate       QuotaGate
	validate   *validator.Validate
}

// NewHandler accepts nil services; their endpoints then answer 503. A nil
// gate does the same for the batch endpoint.
func NewHandler(summarizer Summarizer, translator Translator, recorder UsageRecorder, gate QuotaGate) *Handler {
	return &Handler{
		summarizer: summarizer,
		translator: translator,
		recorder:   recorder,
		gate:       gate,
		validate:   validator.New(),
	}
}

type SummaryRequest struct {
	Text      string `json:"text" validate:"required,max=50000"`
	Language  string `json:"language" validate:"omitempty,oneof=auto ar en fr"`
	MaxLength int    `json:"max_length" validate:"omitempty,min=20,max=2000"`
}

type SummaryResponse struct {
	Summary          string  `json:"summary"`
	Language         string  `json:"language"`
	OriginalLength   int     `json:"original_length"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio int     `json:"compression_ratio"`
	Remaining        *int    `json:"remaining,omitempty"`
}

type TranslationRequest struct {
	Text           string `json:"text" validate:"required,max=50000"`
	SourceLanguage string `json:"source_language" validate:"omitempty,oneof=auto ar en fr"`
	TargetLanguage string `json:"target_language" validate:"required,oneof=ar en fr"`
}

type TranslationResponse struct {
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Remaining      *int   `json:"remaining,omitempty"`
}

type BulkTranslationRequest struct {
	Texts          []string `json:"texts" validate:"required,min=1,max=10,dive,max=50000"`
	SourceLanguage string   `json:"source_language" validate:"omitempty,oneof=auto ar en fr"`
	TargetLanguage string   `json:"target_language" validate:"required,oneof=ar en fr"`
}

// BulkItem is the outcome for one text of a batch. Items fail on their own
// without failing the batch.
type BulkItem struct {
	Original   string  `json:"original"`
	Translated *string `json:"translated"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

type BulkTranslationResponse struct {
	Translations    []BulkItem `json:"translations"`
	TotalTranslated int        `json:"total_translated"`
	TargetLanguage  string     `json:"target_language"`
	Remaining       *int       `json:"remaining,omitempty"`
}

func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	if h.summarizer == nil {
		api.HandleError(w, api.ErrServiceUnavailable.WithMessage("summarization is not available"))
		return
	}

	var req SummaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if utf8.RuneCountInString(req.Text) < minSummaryInput {
		api.HandleError(w, api.NewValidationError("text must be at least 50 characters long"))
		return
	}
	if req.Language == "" || req.Language == "auto" {
		req.Language = detectLanguage(req.Text)
	}
	if req.MaxLength == 0 {
		req.MaxLength = defaultMaxLength
	}

	summary, err := h.summarizer.Summarize(r.Context(), SummarizeInput{
		Text:      req.Text,
		Language:  req.Language,
		MaxLength: req.MaxLength,
	})
	if err != nil {
		h.serviceError(w, "summarizing text", err)
		return
	}

	original := utf8.RuneCountInString(req.Text)
	length := utf8.RuneCountInString(summary)
	h.record(r, quota.ActionSummary, map[string]any{
		"language":        req.Language,
		"original_length": original,
		"summary_length":  length,
	})

	api.JSON(w, http.StatusOK, SummaryResponse{
		Summary:          summary,
		Language:         req.Language,
		OriginalLength:   original,
		SummaryLength:    length,
		CompressionRatio: compressionRatio(original, length),
		Remaining:        remaining(r.Context()),
	})
}

func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	h.translate(w, r, "translation")
}

// TranslateSummary translates a previously produced summary. It is metered
// as a translation.
func (h *Handler) TranslateSummary(w http.ResponseWriter, r *http.Request) {
	h.translate(w, r, "summary_translation")
}

func (h *Handler) translate(w http.ResponseWriter, r *http.Request, source string) {
	if h.translator == nil {
		api.HandleError(w, api.ErrServiceUnavailable.WithMessage("translation is not available"))
		return
	}

	var req TranslationRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.SourceLanguage == "" || req.SourceLanguage == "auto" {
		req.SourceLanguage = detectLanguage(req.Text)
	}
	if req.SourceLanguage == req.TargetLanguage {
		api.HandleError(w, api.NewBadRequestError("source and target languages are the same"))
		return
	}

	translated, err := h.translator.Translate(r.Context(), TranslateInput{
		Text:           req.Text,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		h.serviceError(w, "translating text", err)
		return
	}

	h.record(r, quota.ActionTranslation, map[string]any{
		"source":          source,
		"source_language": req.SourceLanguage,
		"target_language": req.TargetLanguage,
		"text_length":     utf8.RuneCountInString(req.Text),
	})

	api.JSON(w, http.StatusOK, TranslationResponse{
		TranslatedText: translated,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Remaining:      remaining(r.Context()),
	})
}

// BulkTranslate translates up to ten texts in one call. The whole batch must
// fit in the caller's remaining quota before any text is sent, and one usage
// record is written per text the service actually translated.
func (h *Handler) BulkTranslate(w http.ResponseWriter, r *http.Request) {
	if h.translator == nil || h.gate == nil {
		api.HandleError(w, api.ErrServiceUnavailable.WithMessage("translation is not available"))
		return
	}

	var req BulkTranslationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SourceLanguage == "" {
		req.SourceLanguage = "auto"
	}
	if req.SourceLanguage == req.TargetLanguage {
		api.HandleError(w, api.NewBadRequestError("source and target languages are the same"))
		return
	}

	ctx := r.Context()
	usage, release, err := h.gate.Acquire(ctx, auth.UserFromContext(ctx), middleware.ClientIP(r), quota.ActionTranslation, len(req.Texts))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer release()

	items := make([]BulkItem, 0, len(req.Texts))
	translated := 0
	for _, text := range req.Texts {
		item := h.translateItem(r, text, req.SourceLanguage, req.TargetLanguage)
		if item.Success && strings.TrimSpace(text) != "" {
			translated++
		}
		items = append(items, item)
	}

	api.JSON(w, http.StatusOK, BulkTranslationResponse{
		Translations:    items,
		TotalTranslated: translated,
		TargetLanguage:  req.TargetLanguage,
		Remaining:       remainingAfter(usage, translated),
	})
}

func (h *Handler) translateItem(r *http.Request, text, source, target string) BulkItem {
	item := BulkItem{Original: text}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		empty := ""
		item.Translated, item.Success = &empty, true
		return item
	}

	if source == "auto" {
		source = detectLanguage(trimmed)
	}
	if source == target {
		item.Error = "source and target languages are the same"
		return item
	}

	out, err := h.translator.Translate(r.Context(), TranslateInput{
		Text:           trimmed,
		SourceLanguage: source,
		TargetLanguage: target,
	})
	if err != nil {
		slog.Warn("translating batch item", "error", err)
		item.Error = "translation failed"
		return item
	}

	h.record(r, quota.ActionTranslation, map[string]any{
		"source":          "bulk_translation",
		"source_language": source,
		"target_language": target,
		"text_length":     utf8.RuneCountInString(trimmed),
	})
	item.Translated, item.Success = &out, true
	return item
}

func (h *Handler) Languages(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, supportedLanguages)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}

func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrServiceUnavailable) {
		slog.Warn(op, "error", err)
		api.HandleError(w, api.ErrServiceUnavailable.Wrap(err))
		return
	}
	slog.Error(op, "error", err)
	api.HandleError(w, api.ErrInternalServer.Wrap(err))
}

// record runs after the action succeeded; a failed write does not fail the
// response. The write outlives a client that hangs up once the work is done.
func (h *Handler) record(r *http.Request, action quota.Action, details map[string]any) {
	entry := quota.Entry{Action: action, IP: middleware.ClientIP(r), Details: details}
	if user := auth.UserFromContext(r.Context()); user != nil {
		id := user.ID
		entry.UserID = &id
	}
	_ = h.recorder.Record(context.WithoutCancel(r.Context()), entry)
}

// compressionRatio is the share of the input removed by summarizing, as a
// whole percentage.
func compressionRatio(original, summary int) int {
	if original == 0 {
		return 0
	}
	return int(math.Round((1 - float64(summary)/float64(original)) * 100))
}

// remaining reports the monthly allowance left after this request, or the
// daily one for anonymous callers. Nil when no quota check ran.
func remaining(ctx context.Context) *int {
	usage, ok := quota.UsageFromContext(ctx)
	if !ok {
		return nil
	}
	return remainingAfter(usage, 1)
}

func remainingAfter(usage quota.Usage, used int) *int {
	var n int
	switch {
	case usage.Monthly != nil && usage.Monthly.Exempt:
		n = quota.Unlimited
	case usage.Monthly != nil:
		n = max(usage.Monthly.Ceiling-usage.Monthly.Count-used, 0)
	default:
		n = max(usage.Daily.Ceiling-usage.Daily.Count-used, 0)
	}
	return &n
}
