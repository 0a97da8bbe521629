package generate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparseable is wrapped by ParseTestCases when the model output holds no
// usable list of test cases.
var ErrUnparseable = errors.New("unparseable test case output")

// TestCase is a single generated QA test case.
type TestCase struct {
	ID             string `json:"Test_ID"`
	Feature        string `json:"Feature"`
	Scenario       string `json:"Test_Scenario"`
	ExpectedResult string `json:"Expected_Result"`
	GroundedIn     string `json:"Grounded_In"`
}

// UnmarshalJSON accepts the canonical keys plus the snake case aliases
// id, scenario, expected_result and grounded_in.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	var raw struct {
		TestID         looseString `json:"Test_ID"`
		ID             looseString `json:"id"`
		Feature        looseString `json:"Feature"`
		Scenario       looseString `json:"Test_Scenario"`
		ScenarioAlias  looseString `json:"scenario"`
		ExpectedResult looseString `json:"Expected_Result"`
		GroundedIn     looseString `json:"Grounded_In"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*tc = TestCase{
		ID:             firstNonEmpty(string(raw.TestID), string(raw.ID)),
		Feature:        string(raw.Feature),
		Scenario:       firstNonEmpty(string(raw.Scenario), string(raw.ScenarioAlias)),
		ExpectedResult: string(raw.ExpectedResult),
		GroundedIn:     string(raw.GroundedIn),
	}
	return nil
}

// looseString decodes a JSON string, number or bool as text.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil || string(data) == "true" || string(data) == "false" {
		*s = looseString(data)
		return nil
	}
	return fmt.Errorf("expected a scalar, got %s", data)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseTestCases extracts a list of test cases from raw model output. It
// accepts a ```json or bare ``` fence, unfenced JSON, a JSON array embedded
// in prose, and an object wrapping a "test_cases" array. On failure it
// returns nil and an error wrapping ErrUnparseable.
func ParseTestCases(raw string) ([]TestCase, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	candidate := text
	if fenced, ok := fencedBlock(text); ok {
		candidate = fenced
	}

	cases, err := decodeTestCases(candidate)
	if err == nil {
		return cases, nil
	}

	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		if embedded, embErr := decodeTestCases(text[start : end+1]); embErr == nil {
			return embedded, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
}

func decodeTestCases(s string) ([]TestCase, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("no JSON found")
	}

	switch s[0] {
	case '[':
		var cases []TestCase
		if err := json.Unmarshal([]byte(s), &cases); err != nil {
			return nil, fmt.Errorf("decoding test case array: %w", err)
		}
		if cases == nil {
			cases = []TestCase{}
		}
		return cases, nil

	case '{':
		var wrapper struct {
			TestCases *[]TestCase `json:"test_cases"`
		}
		if err := json.Unmarshal([]byte(s), &wrapper); err != nil {
			return nil, fmt.Errorf("decoding test case object: %w", err)
		}
		if wrapper.TestCases == nil {
			return nil, errors.New(`object has no "test_cases" array`)
		}
		if *wrapper.TestCases == nil {
			return []TestCase{}, nil
		}
		return *wrapper.TestCases, nil

	default:
		return nil, errors.New("no JSON found")
	}
}

// fencedBlock returns the body of the first ``` fence in s with any language
// label dropped. An unterminated fence runs to the end of s.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	body := s[open+3:]

	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if label := strings.TrimSpace(body[:nl]); !strings.ContainsAny(label, "[{ ") {
			body = body[nl+1:]
		}
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// StripFence returns the body of the first ``` fence in s, or s itself when
// there is none, trimmed.
func StripFence(s string) string {
	if body, ok := fencedBlock(s); ok {
		return body
	}
	return strings.TrimSpace(s)
}
