package http

import (
	"net/http"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/services"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
)

// handleDashboard renders the four aggregates and the monthly chart. A
// collection that fails to load counts as empty; the user is warned.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	d := s.records.LoadDashboard(r.Context(), sess.Caller(), s.now())
	view := newDashboardView(d)

	resp := NewHTMXResponse()
	if d.Err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Dashboard rendered with missing collections",
			log.FieldUserID, sess.User().ID, log.FieldError, d.Err)
		resp.TriggerWarningNotification("Some records could not be loaded")
	}
	if err := resp.BodyTemplate(s.templates, "dashboard", view); err != nil {
		s.sl.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{log.FieldTemplate: "dashboard"})
	}
	resp.Write(w)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	c := s.records.LoadCounts(r.Context(), sess.Caller())
	resp := NewHTMXResponse()
	if c.Err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Admin counts incomplete",
			log.FieldUserID, sess.User().ID, log.FieldError, c.Err)
		resp.TriggerWarningNotification("Some records could not be loaded")
	}
	data := struct {
		services.Counts
		Email string
	}{c, sess.User().Email}
	if err := resp.BodyTemplate(s.templates, "admin", data); err != nil {
		s.sl.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{log.FieldTemplate: "admin"})
	}
	resp.Write(w)
}

func (s *Server) handleCalculatorForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "calculator", calculatorView{})
}

// handleCalculate runs the funding calculation on whatever was entered.
// Nothing is validated: empty or non-numeric fields give NaN results.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").NoSwap().Write(w)
		return
	}
	v := calculatorView{Amount: p.Get("amount"), Rate: p.Get("rate"), Fee: p.Get("fee")}
	res := core.Calculate(
		core.ParseFundingInput(v.Amount),
		core.ParseFundingInput(v.Rate),
		core.ParseFundingInput(v.Fee),
	).Display()
	v.Result = &res

	if p.IsJSON() {
		writeJSON(w, http.StatusOK, map[string]string{
			"advance":    res.Advance,
			"fee_amount": res.FeeAmount,
			"reserve":    res.Reserve,
			"net":        res.Net,
		})
		return
	}
	s.render(w, r, http.StatusOK, "calc_result", v)
}
