package httpx

import (
	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/go-chi/chi/v5"
)

type Registrar interface {
	Register(r chi.Router)
}

// PublicRegistrar is implemented by handlers that also serve a few routes
// without a token.
type PublicRegistrar interface {
	RegisterPublic(r chi.Router)
}

// Mount wires handlers under /api. Anonymous handlers see an optional
// principal; protected ones reject requests without a valid token.
func Mount(r chi.Router, v *auth.Verifier, anonymous []Registrar, protected ...Registrar) {
	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(v.Middleware(false, AuthError))
			for _, h := range anonymous {
				h.Register(g)
			}
			for _, h := range protected {
				if p, ok := h.(PublicRegistrar); ok {
					p.RegisterPublic(g)
				}
			}
		})
		api.Group(func(g chi.Router) {
			g.Use(v.Middleware(true, AuthError))
			for _, h := range protected {
				h.Register(g)
			}
		})
	})
}
