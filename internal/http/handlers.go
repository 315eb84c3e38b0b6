package http

import (
	"net/http"

	"flowmoney/internal/core"
	"flowmoney/internal/export"
	flowlog "flowmoney/internal/log"
	"flowmoney/internal/services"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r)
	p, err := s.deps.Memberships.ResolveIdentity(r.Context(), id.UserID, id.DisplayName)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p, s.deps.Clock()))
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Memberships.GrantPermanentPro(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p, s.deps.Clock()))
}

func (s *Server) handleUpdateSavings(w http.ResponseWriter, r *http.Request) {
	var req savingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	goal, err := parseGoal(req.Goal)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	p, err := s.deps.Memberships.UpdateSavingsSettings(r.Context(), userID(r), req.Enabled, goal)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p, s.deps.Clock()))
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	ls, err := s.deps.Ledgers.ListLedgers(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpList, err)
		return
	}
	out := make([]ledgerView, 0, len(ls))
	for _, l := range ls {
		out = append(out, newLedgerView(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledgers": out})
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpCreate, err)
		return
	}
	l, err := s.deps.Ledgers.CreateLedger(r.Context(), userID(r), sanitizeInput(req.Name))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLedgerView(l))
}

func (s *Server) handleRenameLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpUpdate, err)
		return
	}
	var req ledgerNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpUpdate, err)
		return
	}
	l, err := s.deps.Ledgers.RenameLedger(r.Context(), userID(r), id, sanitizeInput(req.Name))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerView(l))
}

func (s *Server) handleDeleteLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpDelete, err)
		return
	}
	if err := s.deps.Ledgers.DeleteLedger(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, flowlog.ComponentLedger, flowlog.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := s.deps.Aggregations.ComputeDashboard(r.Context(), userID(r), queryString(q, "ledger_id"), queryString(q, "q"))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentAggregation, flowlog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newDashboardView(d, s.deps.Location))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := core.ParseRange(q.Get("range"))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentAggregation, flowlog.OpRead, err)
		return
	}
	ft, err := core.ParseFilterType(q.Get("type"))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentAggregation, flowlog.OpRead, err)
		return
	}
	filter := core.StatsFilter{
		Range:   rng,
		Type:    ft,
		Date:    queryString(q, "date"),
		Keyword: queryString(q, "q"),
	}
	res, err := s.deps.Aggregations.ComputeStats(r.Context(), userID(r), filter, queryString(q, "ledger_id"))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentAggregation, flowlog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatsView(res, s.deps.Location))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpCreate, err)
		return
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpCreate, err)
		return
	}
	// An omitted date means today in the server's calendar.
	date := sanitizeInput(req.Date)
	if date == "" {
		date = s.deps.Clock().In(s.deps.Location).Format(dateLayout)
	}
	id, err := s.deps.Transactions.CreateTransaction(r.Context(), userID(r), services.CreateTransactionParams{
		Amount:             amount,
		Type:               req.Type,
		CategoryIdentifier: sanitizeInput(req.Category),
		LedgerID:           sanitizeInput(req.LedgerID),
		Date:               date,
		Note:               sanitizeInput(req.Note),
		Mood:               req.Mood,
	})
	if err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+id).
		Data(map[string]string{"id": id}).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpDelete, err)
		return
	}
	if err := s.deps.Transactions.DeleteTransaction(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := s.deps.Transactions.ListCategories(r.Context(), userID(r), r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpList, err)
		return
	}
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, newCategoryView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpDelete, err)
		return
	}
	if err := s.deps.Transactions.DeleteCategory(r.Context(), userID(r), id); err != nil {
		s.writeError(w, r, flowlog.ComponentTransaction, flowlog.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, flowlog.ComponentExport, flowlog.OpExport, err)
		return
	}
	f, err := s.deps.Exports.Export(r.Context(), userID(r), format)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentExport, flowlog.OpExport, err)
		return
	}
	NewJSONResponse().Attachment(f.Name, f.ContentType, f.Body).Write(w)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeErrorCode(w, http.StatusNotFound, "not_found", "live updates are disabled", "")
		return
	}
	if err := s.deps.Sessions.Serve(w, r, userID(r)); err != nil {
		// The upgrader has already answered the client.
		flowlog.FromContext(r.Context()).WithComponent(flowlog.ComponentHTTP).
			WarnContext(r.Context(), "Websocket session ended with error", flowlog.FieldError, err)
	}
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q, "page", 1)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpList, err)
		return
	}
	if page < 1 {
		page = 1
	}
	res, err := s.deps.Memberships.ListProfiles(r.Context(), queryString(q, "q"), page)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserPageView(res, page, s.deps.Clock()))
}

func (s *Server) handleAdminMembership(w http.ResponseWriter, r *http.Request) {
	target, err := pathID(r)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	var req membershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	p, err := s.deps.Memberships.GrantMembershipDays(r.Context(), target, req.IsPro, req.Days)
	if err != nil {
		s.writeError(w, r, flowlog.ComponentMembership, flowlog.OpUpdate, err)
		return
	}
	flowlog.FromContext(r.Context()).WithComponent(flowlog.ComponentMembership).
		InfoContext(r.Context(), "Admin membership override", "target_user_id", target, "is_pro", req.IsPro, "days", req.Days)
	writeJSON(w, http.StatusOK, newProfileView(p, s.deps.Clock()))
}
