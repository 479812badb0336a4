package crud

import "github.com/roach88/crudq/internal/query"

// Normalize merges the three filter tiers into one filter.
//
// Each {field, operator, value} entry becomes {field: {operator: value}}; a
// params entry becomes {field: {$eq: value}}. Entries of one tier that target
// the same field combine their operators. A later tier replaces the whole
// condition of a field set by an earlier tier, so params always win and
// static route filters beat the caller.
//
// Entries with an empty field are skipped and an empty operator means $eq.
// Normalize never fails; operator and operand checks happen in Assemble.
func Normalize(caller, static []query.FilterCond, params []query.ParamFilter) query.Filter {
	out := query.Filter{}
	overlay(out, caller)
	overlay(out, static)

	conds := make([]query.FilterCond, 0, len(params))
	for _, p := range params {
		conds = append(conds, query.FilterCond{Field: p.Field, Operator: query.OpEq, Value: p.Value})
	}
	overlay(out, conds)
	return out
}

func overlay(out query.Filter, conds []query.FilterCond) {
	tier := tierFilter(conds)
	for field, cond := range tier {
		out[field] = cond
	}
}

func tierFilter(conds []query.FilterCond) query.Filter {
	tier := query.Filter{}
	for _, c := range conds {
		if c.Field == "" {
			continue
		}
		op := c.Operator
		if op == "" {
			op = query.OpEq
		}
		if tier[c.Field] == nil {
			tier[c.Field] = query.Condition{}
		}
		tier[c.Field][op] = c.Value
	}
	return tier
}
