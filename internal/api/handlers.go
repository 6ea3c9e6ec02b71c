package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"callcore/internal/callmanager"
	"callcore/internal/database"
	"callcore/internal/telephony"
	"callcore/internal/tracker"
)

// callsResponse is the coordinator's view across every phone.
type callsResponse struct {
	State      telephony.PhoneState `json:"state"`
	Foreground telephony.CallInfo   `json:"foreground"`
	Background telephony.CallInfo   `json:"background"`
	Ringing    telephony.CallInfo   `json:"ringing"`
}

// phoneRequest selects the phone a command applies to. An empty phone
// lets the coordinator pick.
type phoneRequest struct {
	Phone string `json:"phone"`
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) command(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), commandTimeout)
}

// writeError maps an error to its HTTP status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]string{"error": err.Error()}

	var cse *telephony.CallStateError
	switch {
	case errors.As(err, &cse):
		status = http.StatusConflict
		body["kind"] = cse.Kind.String()
	case errors.Is(err, callmanager.ErrUnknownPhone):
		status = http.StatusNotFound
	case errors.Is(err, tracker.ErrInvalidDTMF):
		status = http.StatusBadRequest
	case errors.Is(err, callmanager.ErrNoPhones), errors.Is(err, tracker.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		s.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) handlePhones(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.command(r)
	defer cancel()

	snaps, err := s.calls.Snapshots(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []tracker.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.command(r)
	defer cancel()

	var resp callsResponse
	var err error
	if resp.State, err = s.calls.State(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Foreground, err = s.calls.ActiveFgCall(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Background, err = s.calls.FirstActiveBgCall(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Ringing, err = s.calls.FirstActiveRingingCall(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
		CLIR    string `json:"clir"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Address == "" {
		badRequest(w, "address is required")
		return
	}
	clir, err := telephony.ParseCLIRMode(req.CLIR)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := s.command(r)
	defer cancel()
	conn, err := s.calls.Dial(ctx, r.PathValue("id"), req.Address, clir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// phoneCall returns the call in role on phone, or the coordinator's pick
// when phone is empty.
func (s *Server) phoneCall(ctx context.Context, phone string, role telephony.Role) (telephony.CallInfo, error) {
	if phone == "" {
		switch role {
		case telephony.RoleRinging:
			return s.calls.FirstActiveRingingCall(ctx)
		case telephony.RoleBackground:
			return s.calls.FirstActiveBgCall(ctx)
		default:
			return s.calls.ActiveFgCall(ctx)
		}
	}
	t, err := s.calls.Tracker(phone)
	if err != nil {
		return telephony.CallInfo{}, err
	}
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return telephony.CallInfo{}, err
	}
	return snap.Call(role), nil
}

func (s *Server) ringingCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, telephony.CallInfo) error) {
	var req phoneRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	ctx, cancel := s.command(r)
	defer cancel()
	call, err := s.phoneCall(ctx, req.Phone, telephony.RoleRinging)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := fn(ctx, call); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": call.Phone})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.ringingCommand(w, r, s.calls.AcceptCall)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.ringingCommand(w, r, s.calls.RejectCall)
}

// handleHangup hangs up the call in the requested role. Without a role it
// picks the first live call among foreground, ringing and background.
func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Role  string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	roles := []telephony.Role{telephony.RoleForeground, telephony.RoleRinging, telephony.RoleBackground}
	if req.Role != "" {
		role, err := telephony.ParseRole(req.Role)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		roles = []telephony.Role{role}
	}

	ctx, cancel := s.command(r)
	defer cancel()

	var call telephony.CallInfo
	for _, role := range roles {
		c, err := s.phoneCall(ctx, req.Phone, role)
		if err != nil {
			s.writeError(w, err)
			return
		}
		call = c
		if c.IsAlive() {
			break
		}
	}
	if err := s.calls.Hangup(ctx, call); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": call.Phone, "role": call.Role.String()})
}

// heldCall resolves the optional held_phone of a swap request.
func (s *Server) heldCall(ctx context.Context, phone string) (*telephony.CallInfo, error) {
	if phone == "" {
		return nil, nil
	}
	c, err := s.phoneCall(ctx, phone, telephony.RoleBackground)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Server) swapCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, *telephony.CallInfo) error) {
	var req struct {
		HeldPhone string `json:"held_phone"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	ctx, cancel := s.command(r)
	defer cancel()
	held, err := s.heldCall(ctx, req.HeldPhone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := fn(ctx, held); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	s.swapCommand(w, r, s.calls.SwitchHoldingAndActive)
}

func (s *Server) handleHangupResume(w http.ResponseWriter, r *http.Request) {
	s.swapCommand(w, r, s.calls.HangupForegroundResumeBackground)
}

func (s *Server) handleDTMF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Digit string `json:"digit"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if len(req.Digit) != 1 {
		badRequest(w, "digit must be a single character")
		return
	}

	ctx, cancel := s.command(r)
	defer cancel()
	sent, err := s.calls.SendDTMF(ctx, req.Digit[0])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

// handlePostDial drives a connection waiting in post-dial: "proceed" after
// a WAIT, "wild" with replacement digits after a WILD, or "cancel".
func (s *Server) handlePostDial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID uint64 `json:"connection_id"`
		Action       string `json:"action"`
		Digits       string `json:"digits"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	ctx, cancel := s.command(r)
	defer cancel()
	phone, id := r.PathValue("id"), telephony.ConnID(req.ConnectionID)

	var err error
	switch req.Action {
	case "proceed":
		err = s.calls.ProceedAfterWaitChar(ctx, phone, id)
	case "wild":
		err = s.calls.ProceedAfterWildChar(ctx, phone, id, req.Digits)
	case "cancel":
		err = s.calls.CancelPostDial(ctx, phone, id)
	default:
		badRequest(w, "action must be proceed, wild or cancel")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "call history is disabled"})
		return
	}

	q := r.URL.Query()
	f := database.HistoryFilter{Phone: q.Get("phone")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		f.Limit = n
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				badRequest(w, "invalid "+name+", want RFC 3339")
				return
			}
			*dst = t
		}
	}

	logs, err := s.history.ListCallLogs(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
