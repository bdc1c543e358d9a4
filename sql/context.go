package sql

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// QueryIDLogField is the log field holding the id of the query being
// compiled or executed.
const QueryIDLogField = "query_id"

// Context of the query compilation and execution.
type Context struct {
	context.Context
	config *Config
	id     uuid.UUID
	query  string
	logger *logrus.Entry
	tracer opentracing.Tracer
}

// ContextOption is a function to configure the context.
type ContextOption func(*Context)

// WithTracer adds the given tracer to the context.
func WithTracer(t opentracing.Tracer) ContextOption {
	return func(ctx *Context) {
		ctx.tracer = t
	}
}

// WithConfig sets the compile configuration of the context.
func WithConfig(c *Config) ContextOption {
	return func(ctx *Context) {
		ctx.config = c
	}
}

// WithQuery adds the given query to the context.
func WithQuery(q string) ContextOption {
	return func(ctx *Context) {
		ctx.query = q
	}
}

// WithLogger sets the base logger of the context. The query id is always
// added as a field.
func WithLogger(l *logrus.Entry) ContextOption {
	return func(ctx *Context) {
		ctx.logger = l
	}
}

// NewContext creates a new query context. Options can be passed to configure
// the context. If some aspect of the context is not configured, the default
// value will be used.
// By default, the context will have the default configuration, a noop tracer
// and the standard logrus logger.
func NewContext(
	ctx context.Context,
	opts ...ContextOption,
) *Context {
	id, err := uuid.NewV4()
	if err != nil {
		logrus.WithField("error", err).Warn("unable to generate query id")
	}

	c := &Context{
		Context: ctx,
		id:      id,
		tracer:  opentracing.NoopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.config == nil {
		c.config = DefaultConfig()
	}

	if c.logger == nil {
		c.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	c.logger = c.logger.WithField(QueryIDLogField, c.id.String())

	return c
}

// NewEmptyContext returns a default context with default values.
func NewEmptyContext() *Context { return NewContext(context.TODO()) }

// ID returns the id of the query associated with this context.
func (c *Context) ID() string { return c.id.String() }

// Query returns the query string associated with this context.
func (c *Context) Query() string { return c.query }

// Config returns the compile configuration.
func (c *Context) Config() *Config { return c.config }

// Logger returns the logger of this context, which already carries the
// query id field.
func (c *Context) Logger() *logrus.Entry { return c.logger }

// Span creates a new tracing span with the given context.
// It will return the span and a new context that should be passed to all
// children of this span.
func (c *Context) Span(
	opName string,
	opts ...opentracing.StartSpanOption,
) (opentracing.Span, *Context) {
	parentSpan := opentracing.SpanFromContext(c.Context)
	if parentSpan != nil {
		opts = append(opts, opentracing.ChildOf(parentSpan.Context()))
	}
	opts = append(opts, opentracing.Tag{Key: QueryIDLogField, Value: c.id.String()})
	span := c.tracer.StartSpan(opName, opts...)
	ctx := opentracing.ContextWithSpan(c.Context, span)

	return span, c.WithContext(ctx)
}

// WithContext returns a new context with the given underlying context.
func (c *Context) WithContext(ctx context.Context) *Context {
	nc := *c
	nc.Context = ctx
	return &nc
}
