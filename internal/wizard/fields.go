package wizard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/bootstrap"
	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

func validationErr(reason, path string) error {
	return wizarderr.Validation(reason, wizarderr.Detail{Path: path, Reason: reason})
}

// validateAndCanonicalizePayload runs the canonical per-field validation
// order spec.md names: unknown field, type mismatch, required-missing,
// then (for multi_select_indexed) expression/explicit-id canonicalization.
// It returns the canonicalized payload keyed by field name.
func validateAndCanonicalizePayload(fields []bootstrap.FieldDef, payload map[string]any, items map[string][]bootstrap.SelectItem) (map[string]any, error) {
	byName := map[string]bootstrap.FieldDef{}
	allowed := map[string]bool{}
	for _, f := range fields {
		byName[f.Name] = f
		allowed[f.Name] = true
		if f.Type == "multi_select_indexed" {
			allowed[f.Name+"_expr"] = true
			allowed[f.Name+"_ids"] = true
		}
	}

	for k := range payload {
		if !allowed[k] {
			return nil, validationErr("unknown_field", "$."+k)
		}
	}

	out := map[string]any{}
	for _, f := range fields {
		path := "$." + f.Name
		switch f.Type {
		case "toggle", "confirm":
			v, present := payload[f.Name]
			if !present {
				if f.Required {
					return nil, validationErr("missing_required", path)
				}
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return nil, validationErr("invalid_type", path)
			}
			out[f.Name] = b

		case "text", "select":
			v, present := payload[f.Name]
			if !present {
				if f.Required {
					return nil, validationErr("missing_required", path)
				}
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, validationErr("invalid_type", path)
			}
			out[f.Name] = s

		case "number":
			v, present := payload[f.Name]
			if !present {
				if f.Required {
					return nil, validationErr("missing_required", path)
				}
				continue
			}
			n, ok := asInt(v)
			if !ok {
				return nil, validationErr("invalid_type", path)
			}
			if f.Constraints.Min != nil && n < *f.Constraints.Min {
				return nil, validationErr("out_of_range", path)
			}
			if f.Constraints.Max != nil && n > *f.Constraints.Max {
				return nil, validationErr("out_of_range", path)
			}
			out[f.Name] = n

		case "table_edit":
			v, present := payload[f.Name]
			if !present {
				if f.Required {
					return nil, validationErr("missing_required", path)
				}
				continue
			}
			l, ok := v.([]any)
			if !ok {
				return nil, validationErr("invalid_type", path)
			}
			out[f.Name] = l

		case "multi_select_indexed":
			idsKey := f.Name + "_ids"
			exprKey := f.Name + "_expr"
			explicitIDs, hasIDs := payload[idsKey]
			expr, hasExpr := payload[exprKey]

			fieldItems := f.Items
			if provided, ok := items[f.Name]; ok && len(provided) > 0 {
				fieldItems = provided
			}

			if !hasIDs && !hasExpr {
				if f.Required {
					return nil, validationErr("missing_required", path)
				}
				out[f.Name+"_ids"] = []string{}
				continue
			}

			var resolved []string
			var err error
			if hasIDs {
				resolved, err = canonicalizeExplicitIDs(explicitIDs, fieldItems, path)
			} else {
				exprStr, ok := expr.(string)
				if !ok {
					return nil, validationErr("invalid_type", "$."+exprKey)
				}
				resolved, err = canonicalizeExpression(exprStr, fieldItems, "$."+exprKey)
			}
			if err != nil {
				return nil, err
			}
			out[f.Name+"_ids"] = resolved

		default:
			return nil, validationErr("unsupported_type", path)
		}
	}

	return out, nil
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int64(t)) {
			return int(t), true
		}
		return 0, false
	}
	return 0, false
}

func canonicalizeExplicitIDs(raw any, items []bootstrap.SelectItem, path string) ([]string, error) {
	rawList, ok := raw.([]any)
	if !ok {
		return nil, validationErr("invalid_type", path)
	}
	valid := map[string]bool{}
	for _, it := range items {
		valid[it.ItemID] = true
	}
	var out []string
	for _, v := range rawList {
		s, ok := v.(string)
		if !ok {
			return nil, validationErr("invalid_type", path)
		}
		if !valid[s] {
			return nil, validationErr("unknown_id", path)
		}
		out = append(out, s)
	}
	// Preserve discovery order, not submission order.
	orderIdx := map[string]int{}
	for i, it := range items {
		orderIdx[it.ItemID] = i
	}
	sort.SliceStable(out, func(i, j int) bool { return orderIdx[out[i]] < orderIdx[out[j]] })
	return dedupe(out), nil
}

// canonicalizeExpression parses a "all" | comma-separated N/N-M selection
// expression against items (1-based, in discovery order) and returns the
// selected item ids in discovery order.
func canonicalizeExpression(expr string, items []bootstrap.SelectItem, path string) ([]string, error) {
	indices, err := parseSelectionExpr(expr, len(items))
	if err != nil {
		return nil, validationErr("invalid_selection", path)
	}
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		out = append(out, items[i-1].ItemID)
	}
	return out, nil
}

// parseSelectionExpr implements the selection expression grammar:
// "all" | token ("," token)*, token := integer | integer "-" integer.
// Ranges are inclusive and 1-based; 0 and reversed ranges are rejected.
func parseSelectionExpr(expr string, maxIndex int) ([]int, error) {
	text := strings.ToLower(strings.TrimSpace(expr))
	if text == "all" {
		out := make([]int, maxIndex)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}

	seen := map[int]bool{}
	for _, rawTok := range strings.Split(text, ",") {
		tok := strings.TrimSpace(rawTok)
		if tok == "" {
			continue
		}
		if strings.Contains(tok, "-") {
			parts := strings.SplitN(tok, "-", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return nil, fmt.Errorf("invalid range token: %s", tok)
			}
			start, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			end, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil || start <= 0 || end <= 0 || end < start {
				return nil, fmt.Errorf("invalid range token: %s", tok)
			}
			for i := start; i <= end; i++ {
				seen[i] = true
			}
		} else {
			n, err := strconv.Atoi(tok)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid selection token: %s", tok)
			}
			seen[n] = true
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		if i > maxIndex {
			return nil, fmt.Errorf("selection out of range")
		}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
