// Package server is the broker's HTTP surface: the authorize, consent,
// callback, token and logout endpoints plus the bearer middleware that
// resolves the current user.
package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-mcp-broker/broker"
	"github.com/jrsteele09/go-mcp-broker/clients"
	"github.com/jrsteele09/go-mcp-broker/internal/config"
)

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	broker   *broker.Service
	registry clients.Repo

	consentTemplate *template.Template
	errorTemplate   *template.Template
}

func New(cfg config.Config, brokerService *broker.Service, registry clients.Repo) (*Server, error) {
	consentTemplate, err := ParseTemplate("consent.html")
	if err != nil {
		return nil, err
	}
	errorTemplate, err := ParseTemplate("error.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		env:             cfg.GetEnv(),
		mux:             http.NewServeMux(),
		config:          cfg,
		broker:          brokerService,
		registry:        registry,
		consentTemplate: consentTemplate,
		errorTemplate:   errorTemplate,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}
