package mw

import (
	"net/http"
	"strings"

	"swapguard/internal/config"
)

type CORSMiddleware struct {
	origins map[string]bool
	any     bool
	methods string
	headers string
}

func NewCORS(cfg *config.CORSConfig) *CORSMiddleware {
	if cfg == nil {
		panic("CORS config cannot be nil")
	}

	m := &CORSMiddleware{
		origins: make(map[string]bool, len(cfg.Origins)),
		methods: joinOrDefault(cfg.Methods, "GET, POST, OPTIONS"),
		headers: joinOrDefault(cfg.Headers, "Authorization, Content-Type, "+DefaultAccountHeader),
	}
	for _, o := range cfg.Origins {
		if o == "*" {
			m.any = true
		}
		m.origins[o] = true
	}
	if len(cfg.Origins) == 0 {
		m.any = true
	}
	return m
}

func (c *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		switch {
		case origin == "":
		case c.any:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case c.origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", c.methods)
		w.Header().Set("Access-Control-Allow-Headers", c.headers)

		// preflight
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func joinOrDefault(v []string, def string) string {
	out := make([]string, 0, len(v))
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return strings.Join(out, ", ")
}
