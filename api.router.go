package main

import (
	"github.com/julienschmidt/httprouter"
)

// MiddlewareMap contains middlwares chain to
// use for public-facing and ops requests.
type MiddlewareMap struct {
	public func(httprouter.Handle) httprouter.Handle
	ops    func(httprouter.Handle) httprouter.Handle
}

// NewMiddlewareMap builds the map from the handler middlewares stacks.
func (api *APIHandler) NewMiddlewareMap() *MiddlewareMap {
	public, ops := api.MiddlewaresStacks()
	return &MiddlewareMap{
		public: public.Chain,
		ops:    ops.Chain,
	}
}
