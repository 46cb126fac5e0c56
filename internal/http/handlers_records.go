package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/export"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

func kindParam(w http.ResponseWriter, r *http.Request) (core.Kind, bool) {
	kind, err := core.ParseKind(r.PathValue("kind"))
	if err != nil {
		NotFoundError("Unknown section").Write(w)
		return "", false
	}
	return kind, true
}

func listTemplate(k core.Kind) string { return k.String() + "_list" }

func formTemplate(k core.Kind) string { return k.String() + "_form" }

func (s *Server) loadList(ctx context.Context, caller store.Caller, kind core.Kind) (listView, error) {
	v := listView{Kind: kind, Label: strings.ToUpper(kind.String()[:1]) + kind.String()[1:]}
	switch kind {
	case core.KindOperation:
		ops, err := s.records.Operations(ctx, caller)
		if err != nil {
			return v, err
		}
		v.Operations = operationRows(ops)
	case core.KindTask:
		tasks, err := s.records.Tasks(ctx, caller)
		if err != nil {
			return v, err
		}
		v.Tasks = taskRows(tasks)
	case core.KindDocument:
		docs, err := s.records.Documents(ctx, caller)
		if err != nil {
			return v, err
		}
		v.Documents = documentRows(docs)
	default:
		return v, core.ErrUnknownKind
	}
	return v, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	resp := NewHTMXResponse()
	v, err := s.loadList(r.Context(), sess.Caller(), kind)
	if err != nil {
		// shown as an empty list
		resp.TriggerWarningNotification(fmt.Sprintf("Could not load %s", kind))
	}
	if err := resp.BodyTemplate(s.templates, listTemplate(kind), v); err != nil {
		s.sl.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{log.FieldTemplate: listTemplate(kind)})
	}
	resp.Write(w)
}

func (s *Server) handleNewForm(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, formTemplate(kind), formView{
		Kind:  kind,
		Title: formTitle(kind),
		Today: s.now().Format("2006-01-02"),
	})
}

// handleCreate saves the submitted record and re-renders the kind's list.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").NoSwap().Write(w)
		return
	}
	rec, err := DecodeRecord(kind, p)
	if err != nil {
		msg := "Invalid " + kind.Singular()
		if errors.Is(err, ErrIncompleteForm) {
			msg = "Please fill in the " + missingField(kind)
		}
		UnprocessableEntityError(msg).NoSwap().TriggerWarningNotification(msg).Write(w)
		return
	}

	if err := s.records.Save(ctx, sess.Caller(), rec); err != nil {
		BackendError(fmt.Sprintf("Could not save %s", kind.Singular())).Write(w)
		return
	}

	s.writeList(w, r, sess, kind, capitalize(kind.Singular())+" saved")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		BadRequestError("Invalid id").NoSwap().Write(w)
		return
	}
	if err := s.records.Delete(r.Context(), sess.Caller(), kind, id); err != nil {
		BackendError(fmt.Sprintf("Could not delete %s", kind.Singular())).Write(w)
		return
	}
	s.writeList(w, r, sess, kind, capitalize(kind.Singular())+" deleted")
}

// writeList answers a successful change with the fresh list. When the
// reload fails the change still happened, so only a warning is shown.
func (s *Server) writeList(w http.ResponseWriter, r *http.Request, sess *session.Session, kind core.Kind, done string) {
	resp := NewHTMXResponse().TriggerRecordsChanged(kind).TriggerModalClose()
	v, err := s.loadList(r.Context(), sess.Caller(), kind)
	if err != nil {
		resp.NoSwap().TriggerWarningNotification(done + ", but the list could not be reloaded").Write(w)
		return
	}
	if err := resp.BodyTemplate(s.templates, listTemplate(kind), v); err != nil {
		s.sl.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{log.FieldTemplate: listTemplate(kind)})
		resp.Write(w)
		return
	}
	resp.TriggerSuccessNotification(done).Write(w)
}

func missingField(k core.Kind) string {
	switch k {
	case core.KindOperation:
		return "date"
	case core.KindTask:
		return "title"
	default:
		return "name"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// handleExport streams the caller's operations as a spreadsheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ctx := r.Context()
	ops, err := s.records.Operations(ctx, sess.Caller())
	if err != nil {
		BackendError("Could not load operations").Write(w)
		return
	}
	f, err := export.OperationsWorkbook(ops)
	if err != nil {
		s.sl.LogError(ctx, "Build workbook failed", err, log.ComponentExport, log.OpRender, nil)
		InternalServerError("Export failed").Write(w)
		return
	}
	defer func() { _ = f.Close() }()

	name := fmt.Sprintf("operations-%s.xlsx", s.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := f.Write(w); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Export write failed", log.FieldError, err)
	}
}
