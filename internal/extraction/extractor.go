// Package extraction превращает свободный текст в проверенные по схеме структуры
// с помощью языковой модели: разбор запроса, разбор ответа поставщика, ранжирование.
//
// Каждый вызов независим. Ответ модели, не прошедший схему, даёт одну
// корректирующую попытку (настраивается), после чего возвращается *ExtractionError.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"procurement/internal/metrics"
	"procurement/models"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	OpParseRequest  = "parse_request"
	OpParseResponse = "parse_response"
	OpRank          = "rank"
)

// RequestData - структурированный вид запроса на закупку
type RequestData struct {
	Title    string
	Budget   float64
	Currency string
	Deadline *time.Time
	Items    []models.LineItem
}

// ResponseData - коммерческие условия из письма поставщика
type ResponseData struct {
	Price    float64
	Timeline string
	Warranty string
	Summary  string
}

// Candidate - компактное описание предложения для ранжирования
type Candidate struct {
	VendorID string  `json:"vendor_id"`
	Vendor   string  `json:"vendor"`
	Price    float64 `json:"price"`
	Terms    string  `json:"terms"`
}

type Extractor struct {
	model      Completer
	log        *zap.Logger
	maxRetries uint64
	retryDelay time.Duration
	now        func() time.Time
}

type Option func(*Extractor)

// WithRetry задаёт число корректирующих повторов и паузу между ними
func WithRetry(maxRetries uint64, delay time.Duration) Option {
	return func(e *Extractor) {
		e.maxRetries = maxRetries
		e.retryDelay = delay
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

func New(model Completer, log *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		model:      model,
		log:        log.Named("extraction"),
		maxRetries: 1,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	// retry.NewConstant не принимает нулевую паузу
	if e.retryDelay <= 0 {
		e.retryDelay = time.Millisecond
	}
	return e
}

// ParseRequest извлекает заголовок, бюджет, срок и позиции из текста запроса
func (e *Extractor) ParseRequest(ctx context.Context, text string) (*RequestData, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ExtractionError{Op: OpParseRequest, Err: errors.New("empty request text")}
	}
	prompt, err := requestPrompt.Format(map[string]any{
		"today":  e.now().Format("2006-01-02"),
		"format": requestFormat,
		"text":   text,
	})
	if err != nil {
		return nil, fmt.Errorf("format request prompt: %w", err)
	}

	var out *RequestData
	err = e.invoke(ctx, OpParseRequest, prompt, func(raw string) error {
		data, err := decodeRequest(raw)
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseResponse извлекает цену, сроки, гарантию и резюме из письма поставщика
func (e *Extractor) ParseResponse(ctx context.Context, emailBody string) (*ResponseData, error) {
	if strings.TrimSpace(emailBody) == "" {
		return nil, &ExtractionError{Op: OpParseResponse, Err: errors.New("empty email body")}
	}
	prompt, err := responsePrompt.Format(map[string]any{
		"format": responseFormat,
		"email":  emailBody,
	})
	if err != nil {
		return nil, fmt.Errorf("format response prompt: %w", err)
	}

	var out *ResponseData
	err = e.invoke(ctx, OpParseResponse, prompt, func(raw string) error {
		data, err := decodeResponse(raw)
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rank возвращает ровно одну оценку на каждого кандидата, score в [0,100].
// Порядок и разрешение ничьих остаются за моделью.
func (e *Extractor) Rank(ctx context.Context, rfpContext string, candidates []Candidate) ([]models.Ranking, error) {
	if len(candidates) == 0 {
		return []models.Ranking{}, nil
	}
	payload, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshal candidates: %w", err)
	}
	prompt, err := rankPrompt.Format(map[string]any{
		"context":   rfpContext,
		"proposals": string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("format rank prompt: %w", err)
	}

	expected := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		expected[c.VendorID] = true
	}

	var out []models.Ranking
	err = e.invoke(ctx, OpRank, prompt, func(raw string) error {
		rankings, err := decodeRankings(raw, expected)
		if err != nil {
			return err
		}
		out = rankings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// invoke вызывает модель и проверяет ответ. Ошибка схемы повторяется с
// корректирующей инструкцией, ошибка транспорта - с исходным текстом.
func (e *Extractor) invoke(ctx context.Context, op, prompt string, accept func(raw string) error) error {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	attempts := 0
	var lastErr error
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewConstant(e.retryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		metrics.ExtractionAttempts.WithLabelValues(op).Inc()

		p := prompt
		var se *schemaError
		if errors.As(lastErr, &se) {
			corrected, err := correctionPrompt.Format(map[string]any{"prompt": prompt, "problem": se.msg})
			if err != nil {
				return err
			}
			p = corrected
		}

		raw, err := e.model.Complete(ctx, p)
		if err != nil {
			lastErr = err
			e.log.Warn("model call failed", zap.String("op", op), zap.Int("attempt", attempts), zap.Error(err))
			return retry.RetryableError(err)
		}
		if err := accept(raw); err != nil {
			lastErr = err
			e.log.Warn("model output rejected", zap.String("op", op), zap.Int("attempt", attempts), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if lastErr == nil {
		lastErr = err
	}
	metrics.ExtractionFailures.WithLabelValues(op).Inc()
	return &ExtractionError{Op: op, Attempts: attempts, Err: lastErr}
}

// Проводные схемы: указатели различают "поле отсутствует" и нулевое значение.

type requestWire struct {
	Title    *string     `json:"title"`
	Budget   *float64    `json:"budget"`
	Currency *string     `json:"currency"`
	Deadline *string     `json:"deadline"`
	Items    *[]itemWire `json:"items"`
}

type itemWire struct {
	ItemName *string  `json:"item_name"`
	Quantity *float64 `json:"quantity"`
	Specs    *string  `json:"specs"`
}

type responseWire struct {
	Price    *float64 `json:"price"`
	Timeline *string  `json:"timeline"`
	Warranty *string  `json:"warranty"`
	Summary  *string  `json:"summary"`
}

type rankingWire struct {
	VendorID *string  `json:"vendor_id"`
	Score    *float64 `json:"score"`
	Reason   *string  `json:"reason"`
}

func decodeRequest(raw string) (*RequestData, error) {
	obj := extractObject(raw)
	if obj == "" {
		return nil, schemaErrorf("no JSON object found in reply")
	}
	var w requestWire
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return nil, schemaErrorf("invalid JSON: %v", err)
	}

	if w.Title == nil || strings.TrimSpace(*w.Title) == "" {
		return nil, schemaErrorf("title is required")
	}
	if w.Items == nil || len(*w.Items) == 0 {
		return nil, schemaErrorf("items must be a non-empty array")
	}

	out := &RequestData{
		Title:    strings.TrimSpace(*w.Title),
		Currency: models.DefaultCurrency,
	}
	if w.Budget != nil {
		if *w.Budget < 0 {
			return nil, schemaErrorf("budget must not be negative")
		}
		out.Budget = *w.Budget
	}
	if w.Currency != nil && strings.TrimSpace(*w.Currency) != "" {
		out.Currency = strings.ToUpper(strings.TrimSpace(*w.Currency))
	}
	if w.Deadline != nil && strings.TrimSpace(*w.Deadline) != "" {
		d, err := parseDate(*w.Deadline)
		if err != nil {
			return nil, err
		}
		out.Deadline = &d
	}

	for i, it := range *w.Items {
		if it.ItemName == nil || strings.TrimSpace(*it.ItemName) == "" {
			return nil, schemaErrorf("items[%d].item_name is required", i)
		}
		if it.Quantity == nil {
			return nil, schemaErrorf("items[%d].quantity is required", i)
		}
		q := *it.Quantity
		if q < 1 || q != math.Trunc(q) {
			return nil, schemaErrorf("items[%d].quantity must be a positive integer, got %v", i, q)
		}
		item := models.LineItem{Name: strings.TrimSpace(*it.ItemName), Quantity: int(q)}
		if it.Specs != nil {
			item.Specs = *it.Specs
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, schemaErrorf("deadline %q is not an ISO date", s)
}

func decodeResponse(raw string) (*ResponseData, error) {
	obj := extractObject(raw)
	if obj == "" {
		return nil, schemaErrorf("no JSON object found in reply")
	}
	var w responseWire
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return nil, schemaErrorf("invalid JSON: %v", err)
	}
	switch {
	case w.Price == nil:
		return nil, schemaErrorf("price is required")
	case w.Timeline == nil:
		return nil, schemaErrorf("timeline is required")
	case w.Warranty == nil:
		return nil, schemaErrorf("warranty is required")
	case w.Summary == nil:
		return nil, schemaErrorf("summary is required")
	}
	if *w.Price < 0 {
		return nil, schemaErrorf("price must not be negative")
	}
	return &ResponseData{
		Price:    *w.Price,
		Timeline: *w.Timeline,
		Warranty: *w.Warranty,
		Summary:  *w.Summary,
	}, nil
}

func decodeRankings(raw string, expected map[string]bool) ([]models.Ranking, error) {
	arr := extractArray(raw)
	if arr == "" {
		return nil, schemaErrorf("no JSON array found in reply")
	}
	var wire []rankingWire
	if err := json.Unmarshal([]byte(arr), &wire); err != nil {
		return nil, schemaErrorf("invalid JSON: %v", err)
	}

	seen := make(map[string]bool, len(wire))
	out := make([]models.Ranking, 0, len(wire))
	for i, w := range wire {
		if w.VendorID == nil || *w.VendorID == "" {
			return nil, schemaErrorf("[%d].vendor_id is required", i)
		}
		id := *w.VendorID
		if !expected[id] {
			return nil, schemaErrorf("[%d].vendor_id %q is not one of the proposals", i, id)
		}
		if seen[id] {
			return nil, schemaErrorf("vendor_id %q ranked more than once", id)
		}
		seen[id] = true
		if w.Score == nil {
			return nil, schemaErrorf("[%d].score is required", i)
		}
		if *w.Score < 0 || *w.Score > 100 || math.IsNaN(*w.Score) {
			return nil, schemaErrorf("[%d].score %v is outside [0,100]", i, *w.Score)
		}
		r := models.Ranking{VendorID: id, Score: *w.Score}
		if w.Reason != nil {
			r.Reason = *w.Reason
		}
		out = append(out, r)
	}
	if len(out) != len(expected) {
		return nil, schemaErrorf("expected %d rankings, got %d", len(expected), len(out))
	}
	return out, nil
}
