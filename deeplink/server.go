package deeplink

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/rs/zerolog"
)

const relaySuffix = "/relay"

// relayPage posts the query and fragment back together. Browsers never send
// the fragment to the server, and the parser needs both to pick one.
var relayPage = template.Must(template.New("relay").Parse(`<!doctype html>
<html><head><title>Fixit sign-in</title></head>
<body data-post="{{.}}">
<p id="status">Completing sign-in...</p>
<script>
(function () {
  var body = new URLSearchParams();
  body.set("query", window.location.search.replace(/^\?/, ""));
  body.set("fragment", window.location.hash.replace(/^#/, ""));
  fetch(document.body.dataset.post, {method: "POST", body: body}).then(function () {
    history.replaceState(null, "", window.location.pathname);
    document.getElementById("status").textContent = "Sign-in received. You can close this window and return to Fixit.";
  });
})();
</script>
</body></html>
`))

// Server is the loopback HTTP endpoint that receives redirects for clients
// without a custom URL scheme and publishes them on a Hub.
type Server struct {
	mux          *http.ServeMux
	routes       []string
	hub          *Hub
	callbackPath string
	log          zerolog.Logger
}

// NewServer registers the callback routes under callbackPath, e.g. "auth/callback".
func NewServer(callbackPath string, hub *Hub) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		hub:          hub,
		callbackPath: "/" + strings.Trim(callbackPath, "/"),
		log:          logging.Component("deeplink"),
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, ChainMiddleware(handler, s.middleware()...))
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+s.callbackPath, s.CallbackHandler())
	s.RegisterRouteFunc("POST "+s.callbackPath+relaySuffix, s.RelayHandler())
}

// CallbackHandler serves the relay page for every redirect. The query alone
// cannot be published: a fragment may also be present and takes precedence.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = relayPage.Execute(w, s.callbackPath+relaySuffix)
	}
}

// RelayHandler publishes the redirect rebuilt from the relayed query and fragment.
func (s *Server) RelayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		query, fragment := r.PostForm.Get("query"), r.PostForm.Get("fragment")
		if query == "" && fragment == "" {
			http.Error(w, "missing query and fragment", http.StatusBadRequest)
			return
		}

		s.hub.Publish(s.redirectURL(r, query, fragment))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) redirectURL(r *http.Request, rawQuery, fragment string) string {
	u := url.URL{
		Scheme:   "http",
		Host:     r.Host,
		Path:     s.callbackPath,
		RawQuery: rawQuery,
	}
	if r.TLS != nil {
		u.Scheme = "https"
	}
	out := u.String()
	if fragment != "" {
		// Appended raw so the fragment keeps its original encoding.
		out += "#" + fragment
	}
	return out
}
