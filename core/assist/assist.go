// Package assist implements the language-model tasks of a dispatch:
// donation extraction, charity ranking, driver message drafting and
// receipt generation.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resqmeals/gateway/core/coerce"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/llm"
	"github.com/resqmeals/gateway/core/logger"
	"github.com/resqmeals/gateway/core/model"
)

// Assistant runs prompts against a Completer.
type Assistant struct {
	llm   llm.Completer
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

// New returns an Assistant.
func New(c llm.Completer, log logger.Logger) *Assistant {
	return &Assistant{llm: c, log: log, now: time.Now, newID: uuid.NewString}
}

// ExtractJSON returns the model's extraction as JSON text.
func (a *Assistant) ExtractJSON(ctx context.Context, message string) (string, error) {
	out, err := a.llm.Complete(ctx, extractSystemPrompt, message)
	if err != nil {
		return "", fmt.Errorf("extract donation: %w", err)
	}
	return coerce.ForceJSONText(out), nil
}

// ExtractDonation parses the extraction into a Donation. Output that is not
// a JSON object is a shape error carrying the raw text as debug payload.
func (a *Assistant) ExtractDonation(ctx context.Context, message string) (model.Donation, error) {
	text, err := a.ExtractJSON(ctx, message)
	if err != nil {
		return model.Donation{}, err
	}
	return ParseDonation(text)
}

// ParseDonation decodes extraction output. Absent fields stay empty.
func ParseDonation(text string) (model.Donation, error) {
	var d model.Donation
	if err := json.Unmarshal([]byte(coerce.ForceJSONText(text)), &d); err != nil {
		return model.Donation{}, fault.New(fault.ErrShape, "extract donation", err).
			WithDebug(map[string]any{"raw": text})
	}
	return d, nil
}

// Ranking is the outcome of RankCharities.
type Ranking struct {
	Ranked   []model.RankedCandidate `json:"ranked"`
	Fallback bool                    `json:"fallback"`
}

// RankCharities asks the model to rank candidates for donation. Output of
// the wrong shape falls back to input order. Transport failures propagate.
func (a *Assistant) RankCharities(ctx context.Context, donation any, candidates []model.Charity) (Ranking, error) {
	payload, err := json.Marshal(map[string]any{"donation": donation, "candidates": candidates})
	if err != nil {
		return Ranking{}, fault.New(fault.ErrValidation, "rank charities", err)
	}
	out, err := a.llm.Complete(ctx, rankSystemPrompt, string(payload))
	if err != nil {
		return Ranking{}, fmt.Errorf("rank charities: %w", err)
	}
	ranked, err := coerce.Ranked(out)
	if err != nil {
		a.log.Warnf("ranking output unusable, using fallback order: %v", err)
		return Ranking{Ranked: coerce.FallbackRanking(candidates), Fallback: true}, nil
	}
	return Ranking{Ranked: ranked}, nil
}

// MessageRequest carries the facts a driver message must contain.
type MessageRequest struct {
	Pickup       string `json:"pickup" validate:"required"`
	Time         string `json:"time"`
	ItemsSummary string `json:"items_summary"`
	AcceptLink   string `json:"accept_link" validate:"required"`
}

// DraftDriverMessage returns the trimmed model text verbatim.
func (a *Assistant) DraftDriverMessage(ctx context.Context, req MessageRequest) (string, error) {
	user := fmt.Sprintf("Pickup address: %s\nPickup deadline: %s\nItems: %s\nAccept link: %s",
		req.Pickup, req.Time, req.ItemsSummary, req.AcceptLink)
	out, err := a.llm.Complete(ctx, draftSystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("draft driver message: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CharityRef identifies the receiving organisation on a receipt.
type CharityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReceiptRequest is the input of GenerateReceipt.
type ReceiptRequest struct {
	RestaurantID   string     `json:"restaurant_id" validate:"required"`
	Charity        CharityRef `json:"charity"`
	Items          any        `json:"items"`
	PickupAddress  string     `json:"pickup_address"`
	PickupDeadline string     `json:"pickup_deadline"`
}

// ReceiptResult holds the parsed receipt, or only the raw text when the
// model output could not be parsed.
type ReceiptResult struct {
	Receipt  *model.Receipt `json:"-"`
	Data     map[string]any `json:"data"`
	JSONText string         `json:"json_text"`
}

// GenerateReceipt asks the model for a receipt. Unparseable output is not
// an error: Receipt and Data stay nil and JSONText carries the raw text.
func (a *Assistant) GenerateReceipt(ctx context.Context, req ReceiptRequest) (ReceiptResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ReceiptResult{}, fault.New(fault.ErrValidation, "generate receipt", err)
	}
	out, err := a.llm.Complete(ctx, receiptSystemPrompt, string(payload))
	if err != nil {
		return ReceiptResult{}, fmt.Errorf("generate receipt: %w", err)
	}
	res := ReceiptResult{JSONText: coerce.ForceJSONText(out)}
	data, err := coerce.Object(out)
	if err != nil {
		a.log.Warnf("receipt output unusable: %v", err)
		res.JSONText = out
		return res, nil
	}
	if text(data["receipt_id"]) == "" {
		data["receipt_id"] = a.newID()
	}
	if text(data["timestamp"]) == "" {
		data["timestamp"] = a.now().UTC().Format(time.RFC3339)
	}
	res.Data = data
	res.Receipt = receiptFrom(data)
	return res, nil
}

func receiptFrom(m map[string]any) *model.Receipt {
	return &model.Receipt{
		ReceiptID:      text(m["receipt_id"]),
		DonorLabel:     text(m["donor_label"]),
		ReceivingOrg:   text(m["receiving_org"]),
		Timestamp:      text(m["timestamp"]),
		ItemSummary:    text(m["item_summary"]),
		PickupAddress:  text(m["pickup_address"]),
		PickupDeadline: text(m["pickup_deadline"]),
		Disclaimer:     text(m["disclaimer"]),
		ReceiptText:    text(m["receipt_text"]),
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}
