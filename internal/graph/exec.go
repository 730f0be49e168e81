package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-be/internal/checkout"
	"storefront-be/internal/payment/admin"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

type QueryResolver interface {
	PaymentMethods(ctx context.Context, storeID string) (*checkout.Methods, error)
	PaymentStatus(ctx context.Context, provider string, requestID string) (*admin.PollResult, error)
}

type MutationResolver interface {
	Checkout(ctx context.Context, input checkout.Request) (*checkout.Result, error)
	TestProviderConnection(ctx context.Context, storeID string, provider string) (*ConnectionTest, error)
	RefundOrder(ctx context.Context, input RefundInput) (*admin.RefundOutcome, error)
}

type ResolverRoot interface {
	Query() QueryResolver
	Mutation() MutationResolver
}

type DirectiveRoot struct {
	Auth func(ctx context.Context, obj any, next graphql.Resolver) (res any, err error)
}

type Config struct {
	Resolvers  ResolverRoot
	Directives DirectiveRoot
}

type fieldResolver func(ctx context.Context, args map[string]any) (any, error)

// executableSchema runs operations against schema.graphqls. Root fields are
// dispatched to the resolvers; their results are encoded as JSON and cut
// down to the client's selection set.
type executableSchema struct {
	schema     *ast.Schema
	directives DirectiveRoot
	roots      map[ast.Operation]map[string]fieldResolver
}

func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	q, m := cfg.Resolvers.Query(), cfg.Resolvers.Mutation()

	return &executableSchema{
		schema:     parsedSchema,
		directives: cfg.Directives,
		roots: map[ast.Operation]map[string]fieldResolver{
			ast.Query: {
				"paymentMethods": func(ctx context.Context, args map[string]any) (any, error) {
					return q.PaymentMethods(ctx, stringArg(args, "storeId"))
				},
				"paymentStatus": func(ctx context.Context, args map[string]any) (any, error) {
					return q.PaymentStatus(ctx, stringArg(args, "provider"), stringArg(args, "requestId"))
				},
			},
			ast.Mutation: {
				"checkout": func(ctx context.Context, args map[string]any) (any, error) {
					var input checkout.Request
					if err := decodeArg(args, "input", &input); err != nil {
						return nil, err
					}
					return m.Checkout(ctx, input)
				},
				"testProviderConnection": func(ctx context.Context, args map[string]any) (any, error) {
					return m.TestProviderConnection(ctx, stringArg(args, "storeId"), stringArg(args, "provider"))
				},
				"refundOrder": func(ctx context.Context, args map[string]any) (any, error) {
					var input RefundInput
					if err := decodeArg(args, "input", &input); err != nil {
						return nil, err
					}
					return m.RefundOrder(ctx, input)
				},
			},
		},
	}
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

// Complexity leaves every field at the default cost of one.
func (e *executableSchema) Complexity(ctx context.Context, typeName, field string, childComplexity int, args map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	var root *ast.Definition
	switch opCtx.Operation.Operation {
	case ast.Query:
		root = e.schema.Query
	case ast.Mutation:
		root = e.schema.Mutation
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "%s operations are not supported", opCtx.Operation.Operation))
	}

	return graphql.OneShot(e.execRoot(ctx, opCtx, root, e.roots[opCtx.Operation.Operation]))
}

// execRoot resolves the root fields one after another, which is also the
// order mutations must run in.
func (e *executableSchema) execRoot(
	ctx context.Context,
	opCtx *graphql.OperationContext,
	root *ast.Definition,
	resolvers map[string]fieldResolver,
) *graphql.Response {

	var (
		data object
		errs gqlerror.List
	)
	for _, field := range graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{root.Name}) {
		if field.Name == "__typename" {
			data = append(data, objectField{field.Alias, root.Name})
			continue
		}

		value, err := e.resolveField(ctx, opCtx, root, field, resolvers[field.Name])
		if err != nil {
			errs = append(errs, presentError(ctx, field, err))
			value = nil
		}
		data = append(data, objectField{field.Alias, value})
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return graphql.ErrorResponse(ctx, "failed to encode response")
	}
	return &graphql.Response{Data: raw, Errors: errs}
}

func (e *executableSchema) resolveField(
	ctx context.Context,
	opCtx *graphql.OperationContext,
	root *ast.Definition,
	field graphql.CollectedField,
	resolve fieldResolver,
) (any, error) {

	def := root.Fields.ForName(field.Name)
	if def == nil || resolve == nil {
		return nil, fmt.Errorf("field %s.%s has no resolver", root.Name, field.Name)
	}

	args := field.ArgumentMap(opCtx.Variables)
	ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{
		Object:     root.Name,
		Field:      field,
		Args:       args,
		IsMethod:   true,
		IsResolver: true,
	})

	next := func(ctx context.Context) (any, error) {
		return resolve(ctx, args)
	}

	var (
		res any
		err error
	)
	if def.Directives.ForName("auth") != nil {
		if e.directives.Auth == nil {
			return nil, errors.New("directive auth is not implemented")
		}
		res, err = e.directives.Auth(ctx, nil, next)
	} else {
		res, err = next(ctx)
	}
	if err != nil {
		return nil, err
	}

	return e.project(opCtx, res, field.Selections, def.Type.Name())
}

func (e *executableSchema) project(opCtx *graphql.OperationContext, res any, sel ast.SelectionSet, typeName string) (any, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return e.shape(opCtx, value, sel, typeName), nil
}

// shape keeps only the selected fields of value, under their aliases and in
// selection order. Absent keys come out as null.
func (e *executableSchema) shape(opCtx *graphql.OperationContext, value any, sel ast.SelectionSet, typeName string) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = e.shape(opCtx, v[i], sel, typeName)
		}
		return out
	case map[string]any:
		def := e.schema.Types[typeName]
		if def == nil || def.Kind != ast.Object {
			// JSON scalars pass through whole
			return v
		}
		obj := make(object, 0, len(sel))
		for _, f := range graphql.CollectFields(opCtx, sel, []string{typeName}) {
			if f.Name == "__typename" {
				obj = append(obj, objectField{f.Alias, typeName})
				continue
			}
			child := ""
			if fd := def.Fields.ForName(f.Name); fd != nil {
				child = fd.Type.Name()
			}
			obj = append(obj, objectField{f.Alias, e.shape(opCtx, v[f.Name], f.Selections, child)})
		}
		return obj
	default:
		return v
	}
}

type objectField struct {
	key   string
	value any
}

// object is a JSON object that keeps field order.
type object []objectField

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// decodeArg moves an input object into its Go type through JSON, so the
// Go type's json tags define the mapping.
func decodeArg(args map[string]any, name string, dst any) error {
	raw, err := json.Marshal(args[name])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
	}
	return nil
}
