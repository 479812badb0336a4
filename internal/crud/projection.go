package crud

import (
	"slices"

	"github.com/roach88/crudq/internal/route"
)

// ResolveProjection computes the selected columns for a read.
//
// A column is eligible when it is not excluded and, if the policy has an
// allow list, is allowed. A non-empty requested list narrows the eligible
// columns to those requested, in request order. Persist and primary-key
// fields are always present. The result is persist fields, then the
// selected columns, then primary keys, without duplicates.
func ResolveProjection(columns []string, policy route.FieldPolicy, requested, persist, primary []string) []string {
	eligible := allowedColumns(columns, policy)

	selected := eligible
	if len(requested) > 0 {
		selected = make([]string, 0, len(requested))
		for _, f := range requested {
			if slices.Contains(eligible, f) {
				selected = append(selected, f)
			}
		}
	}

	out := make([]string, 0, len(persist)+len(selected)+len(primary))
	for _, group := range [][]string{persist, selected, primary} {
		for _, f := range group {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out
}

func allowedColumns(columns []string, policy route.FieldPolicy) []string {
	if len(policy.Allow) == 0 && len(policy.Exclude) == 0 {
		return columns
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if slices.Contains(policy.Exclude, c) {
			continue
		}
		if len(policy.Allow) > 0 && !slices.Contains(policy.Allow, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
