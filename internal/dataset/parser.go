// Package dataset parses uploaded training data into the standard
// instruction/output sample shape.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/refinelab/modeldash/internal/models"
)

// Format identifies the detected shape of uploaded samples.
type Format string

const (
	FormatStandard Format = "standard"
	FormatQA       Format = "qa"
	FormatEmbedded Format = "embedded"
	FormatUnknown  Format = "unknown"
	FormatEmpty    Format = "empty"
)

// ParseResult carries the converted samples plus what was detected.
type ParseResult struct {
	Format    Format          `json:"format"`
	Samples   []models.Sample `json:"samples"`
	Converted int             `json:"converted"`
	Skipped   int             `json:"skipped"`
}

// Parse reads samples from raw JSON. Accepts either a JSON array of objects
// or JSONL (one object per line) and converts recognized formats to the
// standard instruction/output shape.
func Parse(data []byte) (*ParseResult, error) {
	raw, err := decode(data)
	if err != nil {
		return nil, err
	}
	return Convert(raw), nil
}

// decode accepts a JSON array or JSONL and returns raw sample objects.
func decode(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var raw []map[string]any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("parse sample array: %w", err)
		}
		return raw, nil
	}

	var raw []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("parse jsonl line %d: %w", line, err)
		}
		raw = append(raw, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return raw, nil
}

// Convert detects the format of raw sample objects and converts them to
// standard samples. The format is decided from the first object; samples
// that cannot be converted are skipped, not fatal.
func Convert(raw []map[string]any) *ParseResult {
	if len(raw) == 0 {
		return &ParseResult{Format: FormatEmpty}
	}

	format := detect(raw[0])
	result := &ParseResult{Format: format}

	for _, obj := range raw {
		var (
			sample models.Sample
			ok     bool
		)
		switch format {
		case FormatStandard:
			sample, ok = convertStandard(obj)
		case FormatQA:
			sample, ok = convertQA(obj)
		case FormatEmbedded:
			sample, ok = convertEmbedded(obj)
		default:
			sample, ok = convertHeuristic(obj)
		}
		if !ok || sample.Empty() {
			result.Skipped++
			continue
		}
		result.Samples = append(result.Samples, sample)
		result.Converted++
	}
	return result
}

func detect(first map[string]any) Format {
	if _, hasInstruction := first["instruction"]; hasInstruction {
		if _, hasOutput := first["output"]; hasOutput {
			return FormatStandard
		}
	}
	if _, hasQ := first["question"]; hasQ {
		if _, hasA := first["answer"]; hasA {
			return FormatQA
		}
	}
	if content, ok := first["content"].(string); ok && strings.HasPrefix(strings.TrimSpace(content), "{") {
		return FormatEmbedded
	}
	return FormatUnknown
}

func convertStandard(obj map[string]any) (models.Sample, bool) {
	return models.Sample{
		Instruction: str(obj, "instruction"),
		Input:       str(obj, "input"),
		Output:      str(obj, "output"),
		System:      str(obj, "system"),
	}, true
}

func convertQA(obj map[string]any) (models.Sample, bool) {
	return models.Sample{
		Instruction: str(obj, "question"),
		Output:      str(obj, "answer"),
		System:      str(obj, "system"),
	}, true
}

// convertEmbedded handles exports where each row carries a JSON document in
// a "content" string field.
func convertEmbedded(obj map[string]any) (models.Sample, bool) {
	content, _ := obj["content"].(string)
	var inner map[string]any
	if err := json.Unmarshal([]byte(content), &inner); err != nil {
		return models.Sample{}, false
	}

	instruction := firstNonEmpty(inner, "Instruction", "instruction", "task", "prompt")
	output := firstNonEmpty(inner, "Output", "output", "response", "solution", "code")
	if instruction == "" || output == "" {
		return models.Sample{}, false
	}
	return models.Sample{
		Instruction: instruction,
		Input:       firstNonEmpty(inner, "Input", "input", "context"),
		Output:      output,
	}, true
}

// convertHeuristic looks for instruction-like and output-like fields in
// unrecognized formats.
func convertHeuristic(obj map[string]any) (models.Sample, bool) {
	instruction := firstNonEmpty(obj, "instruction", "text", "input", "prompt", "question")
	output := firstNonEmpty(obj, "output", "response", "answer", "code", "solution")
	if instruction == "" && output == "" {
		return models.Sample{}, false
	}
	return models.Sample{Instruction: instruction, Output: output}, true
}

func str(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func firstNonEmpty(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
