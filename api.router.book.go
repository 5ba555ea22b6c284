package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects the catalog related api endpoints.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.POST("/v1/books", m.public(api.FetchBook))
	router.GET("/v1/books", m.public(api.SearchBooks))
	router.GET("/v1/books/:isbn", m.public(api.GetOneBook))
	router.DELETE("/v1/books/:isbn", m.public(api.DeleteOneBook))
	router.GET("/v1/books/:isbn/cover", m.public(api.GetBookCover))
	router.GET("/v1/isbn/:isbn", m.public(api.NormalizeISBN))
	router.GET(EventsPath, m.public(api.StreamEvents))
	return router
}
