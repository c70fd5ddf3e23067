package service

import (
	"context"
	"encoding/json"
	"strconv"

	dErrors "conforma/pkg/domain-errors"
)

// answerPayload is the wire shape of an answer. Exactly one of the fields is
// meaningful depending on the question type.
type answerPayload struct {
	Value  string   `json:"value"`
	Values []string `json:"values"`
	Text   string   `json:"text"`
}

// scoreAnswer derives the maturity score for a submitted answer. Scored
// scales map the selected option values onto their weights; multi-selects
// average them. Free-text and file questions carry no score.
func (s *Service) scoreAnswer(ctx context.Context, snapshot *QuestionSnapshot, answer json.RawMessage) (*float64, error) {
	var payload answerPayload
	if err := json.Unmarshal(answer, &payload); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "answer is not valid JSON")
	}

	switch snapshot.ScaleType {
	case "LIKERT_1_5", "YES_NO":
	case "NUMERIC":
		if payload.Value == "" {
			return nil, nil
		}
		score, err := strconv.ParseFloat(payload.Value, 64)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "numeric answer must be a number")
		}
		return &score, nil
	default:
		return nil, nil
	}

	options, err := s.options.QuestionOptions(ctx, snapshot.BankQuestionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load question options")
	}
	weights := make(map[string]float64, len(options))
	for _, opt := range options {
		weights[opt.Value] = opt.Score
	}

	values := payload.Values
	if len(values) == 0 {
		if payload.Value == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "answer must select an option")
		}
		values = []string{payload.Value}
	}

	var total float64
	for _, value := range values {
		score, ok := weights[value]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "answer value %q is not an option", value)
		}
		total += score
	}
	avg := total / float64(len(values))
	return &avg, nil
}
