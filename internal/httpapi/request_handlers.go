package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/obs"
	"accessdesk.org/internal/rbac"
	"accessdesk.org/internal/request"
	"accessdesk.org/internal/risk"
)

type createRequestBody struct {
	ApplicationName string `json:"application_name"`
	Justification   string `json:"justification"`
}

type decisionBody struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

type listResponse struct {
	Items []request.AccessRequest `json:"items"`
	Count int                     `json:"count"`
}

// newListResponse keeps empty result sets marshaling as [] rather than null.
func newListResponse(items []request.AccessRequest) listResponse {
	if items == nil {
		items = []request.AccessRequest{}
	}
	return listResponse{Items: items, Count: len(items)}
}

func (a *API) handleRequestsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRequest(w, r)
	case http.MethodGet:
		a.listRequests(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRequestResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/access-requests/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getRequest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "decision":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.decideRequest(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "assessment":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assessRequest(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "access-requests" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	actor, err := requireActor(r.Context())
	if err != nil {
		handleRequestError(w, r, err)
		return
	}
	items, err := a.requests.GetByUser(r.Context(), parts[0], actor)
	if err != nil {
		handleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}

func (a *API) createRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r.Context())
	if err != nil {
		handleRequestError(w, r, err)
		return
	}

	var body createRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req, err := a.requests.Create(r.Context(), request.CreateInput{
		ApplicationName: body.ApplicationName,
		Justification:   body.Justification,
	}, actor)
	if err != nil {
		handleRequestError(w, r, err)
		return
	}

	obs.IncRequestCreated()
	_ = audit.LogEvent(r.Context(), "access_request.create", map[string]any{
		"access_request_id": req.ID,
		"application":       req.ApplicationName,
		"required_roles":    req.RequiredApprovals,
	})

	w.Header().Set("Location", "/v1/access-requests/"+req.ID)
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r.Context())
	if err != nil {
		handleRequestError(w, r, err)
		return
	}

	var items []request.AccessRequest
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		items, err = a.requests.GetByStatus(r.Context(), request.Status(raw), actor)
	} else {
		items, err = a.requests.GetAll(r.Context(), actor)
	}
	if err != nil {
		handleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}

func (a *API) getRequest(w http.ResponseWriter, r *http.Request, id string) {
	actor, err := requireActor(r.Context())
	if err != nil {
		handleRequestError(w, r, err)
		return
	}
	req, err := a.requests.GetByID(r.Context(), id, actor)
	if err != nil {
		handleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) decideRequest(w http.ResponseWriter, r *http.Request, id string) {
	actor, err := requireActor(r.Context())
	if err != nil {
		handleRequestError(w, r, err)
		return
	}

	var body decisionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	outcome := strings.ToUpper(strings.TrimSpace(body.Outcome))
	req, err := a.requests.Decide(r.Context(), id, request.DecisionInput{
		Outcome: request.Outcome(outcome),
		Note:    strings.TrimSpace(body.Note),
	}, actor)
	if err != nil {
		handleRequestError(w, r, err)
		return
	}

	obs.IncDecision(strings.ToLower(outcome))
	_ = audit.LogEvent(r.Context(), "access_request.decide", map[string]any{
		"access_request_id": req.ID,
		"outcome":           outcome,
		"status":            string(req.Status),
	})

	writeJSON(w, http.StatusOK, req)
}

func (a *API) assessRequest(w http.ResponseWriter, r *http.Request, id string) {
	actor, err := requireActor(r.Context())
	if err != nil {
		handleRequestError(w, r, err)
		return
	}
	assessment, err := a.requests.AssessRisk(r.Context(), id, actor)
	if err != nil {
		handleRequestError(w, r, err)
		return
	}

	obs.IncAssessment(string(assessment.Level))
	_ = audit.LogEvent(r.Context(), "access_request.assess", map[string]any{
		"access_request_id": id,
		"score":             assessment.Score,
		"level":             string(assessment.Level),
	})

	writeJSON(w, http.StatusOK, assessment)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRequestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, request.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, request.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, request.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, risk.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
