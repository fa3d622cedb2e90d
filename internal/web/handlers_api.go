package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
)

type variantResponse struct {
	Experiment string  `json:"experiment"`
	Variant    *string `json:"variant"`
}

type queuedResponse struct {
	Queued bool `json:"queued"`
}

// decodeOptional decodes a JSON body into v, treating an empty body as no input.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleAPIVariant(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	enroll, _ := strconv.ParseBool(r.URL.Query().Get("enroll"))

	variant, ok, err := managerFrom(r.Context()).GetVariant(r.Context(), name, enroll)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := variantResponse{Experiment: name}
	if ok {
		resp.Variant = &variant
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIEnroll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variant string `json:"variant"`
	}
	if err := decodeOptional(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if body.Variant == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "variant is required"})
		return
	}

	managerFrom(r.Context()).Enroll(r.PathValue("name"), body.Variant)
	writeJSON(w, http.StatusAccepted, queuedResponse{Queued: true})
}

func (s *Server) handleAPIGoal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Extra string `json:"extra"`
	}
	if err := decodeOptional(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	managerFrom(r.Context()).LogGoal(r.PathValue("name"), body.Extra)
	writeJSON(w, http.StatusAccepted, queuedResponse{Queued: true})
}

func (s *Server) handleAPIIdentify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identity *string `json:"identity"`
	}
	if err := decodeOptional(r, &body); err != nil || body.Identity == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"identity": "..."}`})
		return
	}

	mgr := managerFrom(r.Context())
	if _, err := mgr.Subject(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	mgr.SetIdentity(*body.Identity)
	writeJSON(w, http.StatusOK, map[string]string{"identity": *body.Identity})
}

func (s *Server) handleAPIExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.repos.Experiments.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]experimentResponse, len(experiments))
	for i, e := range experiments {
		resp[i] = experimentResponse{
			Name:       e.Name,
			Variants:   e.Variants,
			Enrollable: e.Enrollable,
			CreatedAt:  e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIFunnel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	experiment := q.Get("experiment")
	if experiment == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "experiment is required"})
		return
	}

	report, err := s.funnel.Generate(r.Context(), experiment, q["goal"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildFunnelResponse(report))
}
