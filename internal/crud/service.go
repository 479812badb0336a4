package crud

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/crudq/internal/query"
	"github.com/roach88/crudq/internal/route"
	"github.com/roach88/crudq/internal/schema"
)

// Service runs the CRUD flows of one route against one store.
//
// Thread-safety: a Service holds no per-request state and is safe for
// concurrent use.
type Service struct {
	graph     *schema.Graph
	entity    *schema.Entity
	opts      *route.Options
	store     Store
	relations *relationResolver
	logger    *slog.Logger
	cacheSize int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithRelationCacheSize bounds the walked join path cache.
// Default: DefaultRelationCacheSize.
func WithRelationCacheSize(n int) Option {
	return func(s *Service) {
		s.cacheSize = n
	}
}

// New binds a route to its entity and store. The route is checked against
// the graph so policy mistakes surface at startup, not per request.
func New(graph *schema.Graph, opts *route.Options, store Store, options ...Option) (*Service, error) {
	if graph == nil || opts == nil || store == nil {
		return nil, fmt.Errorf("crud: graph, route options and store are required")
	}
	if err := route.Check(opts, graph); err != nil {
		return nil, fmt.Errorf("crud: %w", err)
	}
	entity, _ := graph.Entity(opts.Entity)

	s := &Service{
		graph:     graph,
		entity:    entity,
		opts:      opts,
		store:     store,
		logger:    slog.Default(),
		cacheSize: DefaultRelationCacheSize,
	}
	for _, o := range options {
		o(s)
	}

	relations, err := newRelationResolver(graph, entity, s.cacheSize)
	if err != nil {
		return nil, err
	}
	s.relations = relations
	return s, nil
}

// Entity returns the entity the service serves.
func (s *Service) Entity() *schema.Entity {
	return s.entity
}

// GetMany runs a collection query. When the caller asked for a page, the
// total count runs concurrently with the page fetch against the same
// un-paginated filter; the first failure cancels the other call.
func (s *Service) GetMany(ctx context.Context, d *query.Descriptor) (*ManyResult, error) {
	if d == nil {
		d = &query.Descriptor{}
	}
	q, err := s.Assemble(d, true)
	if err != nil {
		return nil, err
	}

	if !wantsPage(d, q.Limit) {
		docs, err := s.store.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		return &ManyResult{Data: docs}, nil
	}

	var (
		docs  []query.Document
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = s.store.Find(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, q.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ManyResult{Envelope: shapePage(docs, total, q.Limit, q.Skip)}, nil
}

// GetOne runs a single-entity query with projection and joins. It fails with
// NotFound when nothing matches.
func (s *Service) GetOne(ctx context.Context, d *query.Descriptor) (query.Document, error) {
	q, err := s.Assemble(d, false)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.FindOne(ctx, q)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(s.entity.Name)
	}
	return doc, nil
}

// getOneShallow looks a document up by the route params alone, without
// projection or joins.
func (s *Service) getOneShallow(ctx context.Context, d *query.Descriptor) (query.Document, error) {
	q := &query.Assembled{
		Collection: s.entity.Collection,
		Filter:     Normalize(nil, nil, d.ParamsFilter),
	}
	doc, err := s.store.FindOne(ctx, q)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(s.entity.Name)
	}
	return doc, nil
}

// identity is the primary-key filter of doc.
func (s *Service) identity(doc query.Document) query.Filter {
	f := query.Filter{}
	for _, pk := range s.entity.PrimaryKeys {
		f[pk] = query.Condition{query.OpEq: doc[pk]}
	}
	return f
}
