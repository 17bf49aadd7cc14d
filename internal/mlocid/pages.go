package mlocid

import (
	"net/http"

	"github.com/kuitang/mlocid-e2e/internal/obs"
)

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	if u := UserFromContext(r.Context()); u != nil {
		data.Username = u.Username
	}
	if err := s.renderer.Render(w, name, data); err != nil {
		obs.From(r.Context()).With("pkg", "mlocid").Error("render_failed", "template", name, "error", err)
		http.Error(w, "internal server failure", http.StatusInternalServerError)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "index.html", pageData{Title: "mlocid", Page: "home"})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "login.html", pageData{Title: "Login - mlocid", Page: "login"})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "register.html", pageData{Title: "Register - mlocid", Page: "register"})
}

func (s *Server) handleCardsPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "cards.html", pageData{Title: "Cards - mlocid", Page: "cards"})
}

func (s *Server) handleStudyPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "study.html", pageData{Title: "Study - mlocid", Page: "study"})
}
