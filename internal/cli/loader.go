package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crudq/internal/config"
	"github.com/roach88/crudq/internal/crud"
	"github.com/roach88/crudq/internal/docstore"
	"github.com/roach88/crudq/internal/mongostore"
	"github.com/roach88/crudq/internal/query"
	"github.com/roach88/crudq/internal/route"
	"github.com/roach88/crudq/internal/schema"
)

var (
	_ crud.Store = (*docstore.Collection)(nil)
	_ crud.Store = (*mongostore.Collection)(nil)
)

// disconnectTimeout bounds closing a MongoDB client.
const disconnectTimeout = 5 * time.Second

// Env is what every command starts from: the runtime config, the process
// logger, the entity schema and the route table checked against it.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	Graph  *schema.Graph
	Routes route.Table
}

// LoadEnv loads config, schema and routes. Failures are reported through f
// and returned as an ExitError with ExitCommandError.
func LoadEnv(opts *RootOptions, f *OutputFormatter) (*Env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "loading config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger := cfg.Log.NewLogger(f.GetErrWriter())
	slog.SetDefault(logger)

	f.VerboseLog("Loading schema from %s", cfg.Schema.Dir)
	graph, err := schema.LoadDir(cfg.Schema.Dir)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, "loading schema", err)
	}

	f.VerboseLog("Loading routes from %s", cfg.Routes.File)
	routes, err := route.Load(cfg.Routes.File)
	if err != nil {
		code := ErrCodeRoutes
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return nil, f.Fail(ExitCommandError, code, "loading routes", err)
	}
	if err := routes.CheckAll(graph); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeRoutes, "checking routes", err)
	}

	return &Env{Config: cfg, Logger: logger, Graph: graph, Routes: routes}, nil
}

// Backend is an opened document store.
type Backend struct {
	Driver     string
	collection func(name string) crud.Store
	close      func() error
}

// Collection returns the crud.Store for one collection.
func (b *Backend) Collection(name string) crud.Store {
	return b.collection(name)
}

// Close releases the store.
func (b *Backend) Close() error {
	return b.close()
}

// OpenBackend opens the store the config selects.
func (e *Env) OpenBackend(ctx context.Context) (*Backend, error) {
	sc := e.Config.Store
	switch sc.Driver {
	case "mongo":
		e.Logger.Info("connecting to mongodb", "database", sc.Database)
		s, err := mongostore.Open(ctx, sc.URI, sc.Database, mongostore.WithObjectIDFields(sc.IDFields...))
		if err != nil {
			return nil, err
		}
		return &Backend{
			Driver:     sc.Driver,
			collection: func(name string) crud.Store { return s.Collection(name) },
			close: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
				defer cancel()
				return s.Close(ctx)
			},
		}, nil
	case "sqlite":
		e.Logger.Info("opening database", "path", sc.Path)
		s, err := docstore.Open(sc.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Driver:     sc.Driver,
			collection: func(name string) crud.Store { return s.Collection(name) },
			close:      s.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// Service binds the named route to its entity's collection in b.
func (e *Env) Service(b *Backend, routeName string) (*crud.Service, error) {
	opts, err := e.Routes.Get(routeName)
	if err != nil {
		return nil, err
	}
	entity, ok := e.Graph.Entity(opts.Entity)
	if !ok {
		return nil, fmt.Errorf("route %s: unknown entity %q", routeName, opts.Entity)
	}
	return crud.New(e.Graph, opts, b.Collection(entity.Collection), crud.WithLogger(e.Logger))
}

// ReadDescriptor decodes a request descriptor from a YAML (or JSON) file.
// An empty path is the empty descriptor. Unknown keys are rejected.
func ReadDescriptor(path string) (*query.Descriptor, error) {
	if path == "" {
		return &query.Descriptor{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	var d query.Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	return &d, nil
}

// ReadDocuments decodes a YAML list of documents, or a single document.
func ReadDocuments(path string) ([]query.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing documents %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]

	var docs []query.Document
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&docs); err != nil {
			return nil, fmt.Errorf("parsing documents %s: %w", path, err)
		}
	case yaml.MappingNode:
		var doc query.Document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parsing documents %s: %w", path, err)
		}
		docs = append(docs, doc)
	default:
		return nil, fmt.Errorf("parsing documents %s: want a mapping or a list of mappings", path)
	}
	return docs, nil
}
