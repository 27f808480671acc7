package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/natserract/zcrm/pkg/zohocrm"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseParams turns repeated k=v flags into query values.
func parseParams(pairs []string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", pair)
		}
		values.Add(key, value)
	}
	return values, nil
}

// readPayload accepts either {"data": [...], "trigger": [...]} or a single
// record object.
func readPayload(path string) (*zohocrm.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if _, ok := probe["data"]; ok {
		var payload zohocrm.Payload
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("failed to parse payload: %w", err)
		}
		return &payload, nil
	}

	var record zohocrm.Record
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return zohocrm.NewPayload(record), nil
}

// mutationOutput is the printed form of a MutationResult.
type mutationOutput struct {
	OK         bool             `json:"ok"`
	Action     string           `json:"action"`
	StatusCode int              `json:"status_code"`
	Records    []zohocrm.Record `json:"records,omitempty"`
	Response   json.RawMessage  `json:"response,omitempty"`
}

func newMutationOutput(result *zohocrm.MutationResult) mutationOutput {
	out := mutationOutput{
		OK:         result.OK,
		Action:     result.Action,
		StatusCode: result.StatusCode,
		Records:    result.Records,
	}
	if !result.OK && json.Valid(result.Raw) {
		out.Response = result.Raw
	}
	return out
}

func printMutation(w io.Writer, result *zohocrm.MutationResult) error {
	if err := printJSON(w, newMutationOutput(result)); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("%s rejected with status code %d", result.Action, result.StatusCode)
	}
	return nil
}
