package crud

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/roach88/crudq/internal/canonical"
	"github.com/roach88/crudq/internal/query"
)

// Assemble composes the descriptor with the route policy into an executable
// query. Collection queries (many) carry sort, skip and limit; single-entity
// lookups never do.
//
// Caller filters and sort keys must name a column of the entity that the
// field policy lets through (a dotted path is checked by its first segment)
// and use an allowed operator.
// Requested fields that are not eligible are dropped, not rejected.
func (s *Service) Assemble(d *query.Descriptor, many bool) (*query.Assembled, error) {
	if d == nil {
		d = &query.Descriptor{}
	}
	if err := s.validateDescriptor(d); err != nil {
		return nil, err
	}

	q := &query.Assembled{
		Collection: s.entity.Collection,
		Filter:     Normalize(d.Filter, s.opts.Query.Filter, d.ParamsFilter),
		Projection: query.Projection{Include: ResolveProjection(
			s.entity.FieldNames(), s.opts.Query.Fields, d.Fields, s.opts.Query.Persist, s.entity.PrimaryKeys,
		)},
		Many: many,
	}

	plan, err := s.relations.Plan(d.Join, s.opts.Query.Join)
	if err != nil {
		return nil, err
	}
	q.Populate = plan

	if many {
		for _, srt := range s.opts.SortOrDefault(d.Sort) {
			q.Sort = append(q.Sort, query.Sort{Field: srt.Field, Order: srt.Order.Normalize()})
		}
		q.Limit = s.take(d)
		q.Skip = skip(d, q.Limit)
	}

	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		fp, _ := Fingerprint(q)
		s.logger.Debug("query assembled",
			"entity", s.entity.Name,
			"collection", q.Collection,
			"many", many,
			"fingerprint", fp,
		)
	}
	return q, nil
}

// Fingerprint is a stable hash of an assembled query, equal for queries that
// differ only in map ordering.
func Fingerprint(q *query.Assembled) (string, error) {
	return canonical.Hash(canonical.DomainQuery, q)
}

// take resolves the page size: the caller's positive limit, else the route
// default, else unbounded (0); MaxLimit caps all three.
func (s *Service) take(d *query.Descriptor) int {
	limit := 0
	switch {
	case d.Limit != nil && *d.Limit > 0:
		limit = *d.Limit
	case s.opts.Query.Limit > 0:
		limit = s.opts.Query.Limit
	}
	if maxLimit := s.opts.Query.MaxLimit; maxLimit > 0 && (limit == 0 || limit > maxLimit) {
		limit = maxLimit
	}
	return limit
}

func skip(d *query.Descriptor, limit int) int {
	switch {
	case d.Page != nil && limit > 0:
		return (*d.Page - 1) * limit
	case d.Offset != nil:
		return *d.Offset
	}
	return 0
}

func (s *Service) validateDescriptor(d *query.Descriptor) error {
	name := s.entity.Name

	for _, c := range d.Filter {
		if c.Field == "" {
			continue
		}
		if err := s.checkField(c.Field, "filter"); err != nil {
			return err
		}
		if c.Operator != "" && !query.AllowedOperators[c.Operator] {
			return invalidInput(name, c.Field, "operator %s is not allowed", c.Operator)
		}
	}
	if res := query.ValidateFilter(tierFilter(d.Filter)); !res.Valid {
		return invalidInput(name, "", "%s", strings.Join(res.Problems, "; "))
	}

	for _, srt := range d.Sort {
		if err := s.checkField(srt.Field, "sort"); err != nil {
			return err
		}
	}
	for _, p := range d.ParamsFilter {
		if p.Field == "" {
			continue
		}
		if err := query.CheckPath(p.Field); err != nil {
			return invalidInput(name, p.Field, "%v", err)
		}
	}

	switch {
	case d.Page != nil && *d.Page < 1:
		return invalidInput(name, "page", "page must be at least 1")
	case d.Offset != nil && *d.Offset < 0:
		return invalidInput(name, "offset", "offset must not be negative")
	case d.Limit != nil && *d.Limit < 0:
		return invalidInput(name, "limit", "limit must not be negative")
	}
	if d.Page != nil {
		if limit := s.take(d); limit > 0 && *d.Page-1 > math.MaxInt/limit {
			return invalidInput(name, "page", "page %d is out of range", *d.Page)
		}
	}
	return nil
}

func (s *Service) checkField(field, what string) error {
	if err := query.CheckPath(field); err != nil {
		return invalidInput(s.entity.Name, field, "%v", err)
	}
	root, _, _ := strings.Cut(field, ".")
	if !s.entity.HasField(root) || !s.selectable(root) {
		return invalidInput(s.entity.Name, field, "%s is not a valid %s field", field, what)
	}
	return nil
}

// selectable reports whether a root column may be filtered or sorted on:
// it must pass the field policy or be a persist or primary-key field.
func (s *Service) selectable(root string) bool {
	return slices.Contains(allowedColumns(s.entity.FieldNames(), s.opts.Query.Fields), root) ||
		slices.Contains(s.opts.Query.Persist, root) ||
		slices.Contains(s.entity.PrimaryKeys, root)
}
