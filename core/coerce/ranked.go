package coerce

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/model"
)

// FallbackReason labels entries of a fallback ranking.
const FallbackReason = "Fallback ranking"

// RankedChain normalizes ranking responses to an object holding "ranked".
func RankedChain() *Chain {
	return &Chain{Key: "ranked", Rules: []Rule{
		Direct{},
		StringWrapped{},
		NestedField{Key: "json"},
		NestedField{Key: "text"},
		NestedField{Key: "json_text"},
		NestedField{Key: "data"},
	}}
}

// ObjectChain accepts any JSON object, bare or embedded in text.
func ObjectChain() *Chain {
	return &Chain{Rules: []Rule{Direct{}, StringWrapped{}}}
}

// Object extracts a JSON object from raw model output.
func Object(raw any) (map[string]any, error) {
	return ObjectChain().Resolve(raw)
}

// Ranked extracts the ordered ranking from raw model output. It fails with
// fault.ErrShape when no "ranked" sequence can be found.
func Ranked(raw any) ([]model.RankedCandidate, error) {
	obj, err := RankedChain().Resolve(raw)
	if err != nil {
		return nil, err
	}
	seq, ok := obj["ranked"].([]any)
	if !ok {
		return nil, fault.Newf(fault.ErrShape, "coerce ranked", "ranked is %T, not a list", obj["ranked"])
	}
	out := make([]model.RankedCandidate, 0, len(seq))
	for i, e := range seq {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fault.Newf(fault.ErrShape, "coerce ranked", "entry %d is %T", i, e)
		}
		out = append(out, candidateFrom(m))
	}
	return out, nil
}

func candidateFrom(m map[string]any) model.RankedCandidate {
	id := str(m["id"])
	if id == "" {
		id = str(m["_id"])
	}
	return model.RankedCandidate{
		ID:     id,
		Name:   str(m["name"]),
		Score:  num(m["score"]),
		Reason: str(m["reason"]),
	}
}

// FallbackRanking ranks candidates in input order, each with score 1.0.
func FallbackRanking(candidates []model.Charity) []model.RankedCandidate {
	out := make([]model.RankedCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = model.RankedCandidate{ID: c.ID, Name: c.Name, Score: 1.0, Reason: FallbackReason}
	}
	return out
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprint(t)
	}
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}
