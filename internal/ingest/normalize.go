// Package ingest fetches the transaction feed and rule catalog and turns them
// into a Dataset.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultLocation is used for missing merchant city and country.
const DefaultLocation = "Unknown"

// Sanitize rewrites bare NaN tokens outside string literals to null.
// Some feed exporters write NaN for missing numbers, which is not valid JSON.
func Sanitize(data []byte) []byte {
	if !bytes.Contains(data, []byte("NaN")) {
		return data
	}

	out := make([]byte, 0, len(data))
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}

		if c == 'N' && bytes.HasPrefix(data[i:], []byte("NaN")) && isTokenBoundary(data, i-1) && isTokenBoundary(data, i+3) {
			out = append(out, "null"...)
			i += 2
			continue
		}

		out = append(out, c)
	}

	return out
}

func isTokenBoundary(data []byte, i int) bool {
	if i < 0 || i >= len(data) {
		return true
	}
	switch data[i] {
	case ' ', '\t', '\n', '\r', ',', ':', '[', ']', '{', '}':
		return true
	}
	return false
}

// Result is the outcome of normalizing one feed.
type Result struct {
	Transactions []domain.Transaction
	Records      [][]byte // raw JSON of each retained record, in order
	Dropped      int
}

// Normalize parses a transaction feed and keeps the valid records.
// A record is valid when it has a numeric amount and non-empty sender and
// receiver account ids. Ids are assigned over the retained records only.
func Normalize(data []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(Sanitize(data)))
	dec.UseNumber()

	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("failed to parse transaction feed: %w", err)
	}

	items, ok := top.([]any)
	if !ok {
		slog.Warn("transaction feed is not an array, treating as empty")
		return &Result{Transactions: []domain.Transaction{}}, nil
	}

	res := &Result{Transactions: make([]domain.Transaction, 0, len(items))}
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			res.Dropped++
			continue
		}

		txn, ok := normalizeRecord(raw, len(res.Transactions))
		if !ok {
			res.Dropped++
			continue
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			res.Dropped++
			continue
		}

		res.Transactions = append(res.Transactions, txn)
		res.Records = append(res.Records, encoded)
	}

	if res.Dropped > 0 {
		slog.Info("dropped invalid transaction records", "dropped", res.Dropped, "kept", len(res.Transactions))
	}

	return res, nil
}

func normalizeRecord(raw map[string]any, index int) (domain.Transaction, bool) {
	amount, ok := numericAmount(raw["amount"])
	if !ok {
		return domain.Transaction{}, false
	}

	sender, ok := identifier(raw["sender_account_id"])
	if !ok {
		return domain.Transaction{}, false
	}
	receiver, ok := identifier(raw["receiver_account_id"])
	if !ok {
		return domain.Transaction{}, false
	}

	return domain.Transaction{
		ID:        "txn-" + strconv.Itoa(index),
		Amount:    amount,
		Sender:    sender,
		Receiver:  receiver,
		Timestamp: text(raw["txn_date_time"]),
		Currency:  text(raw["currency"]),
		Type:      text(raw["transaction_type"]),
		City:      orDefault(text(raw["merchant_city"])),
		Country:   orDefault(text(raw["merchant_country"])),
		Raw:       raw,
	}, true
}

// numericAmount accepts JSON numbers only; null, strings and the sanitized
// NaN are rejected.
func numericAmount(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// identifier accepts non-empty strings and non-zero numbers.
func identifier(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		f, err := id.Float64()
		if err != nil || f == 0 {
			return "", false
		}
		return id.String(), true
	default:
		return "", false
	}
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func orDefault(s string) string {
	if s == "" {
		return DefaultLocation
	}
	return s
}

// ParseRules decodes a rule catalog feed. Severities are lower-cased.
func ParseRules(data []byte) ([]domain.RuleDefinition, error) {
	var defs []domain.RuleDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}
	for i := range defs {
		defs[i].Severity = defs[i].Severity.Normalize()
	}
	return defs, nil
}
