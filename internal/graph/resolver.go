package graph

import (
	"storefront-be/internal/checkout"
	"storefront-be/internal/payment/admin"

	"github.com/99designs/gqlgen/graphql"
)

type Resolver struct {
	CheckoutSvc checkout.Service
	Stores      checkout.StoreReader
	Methods     checkout.MethodLister
	AdminSvc    admin.Service
}

func NewSchema(r *Resolver) graphql.ExecutableSchema {
	return NewExecutableSchema(Config{
		Resolvers: r,
		Directives: DirectiveRoot{
			Auth: AuthDirective,
		},
	})
}

func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

type queryResolver struct{ *Resolver }

type mutationResolver struct{ *Resolver }
