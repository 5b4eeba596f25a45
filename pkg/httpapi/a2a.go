package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aviary-ai/aviary/pkg/a2a"
	"github.com/aviary-ai/aviary/pkg/store"
)

// loadA2AAgent resolves the agent behind an A2A route. Agents without
// A2A enabled refuse with 403; unknown agents are 404.
func (s *Server) loadA2AAgent(w http.ResponseWriter, r *http.Request) *store.Agent {
	agent, err := s.store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return nil
		}
		writeStoreError(w, err)
		return nil
	}
	if !agent.A2AEnabled {
		writeError(w, http.StatusForbidden, "agent is not A2A enabled")
		return nil
	}
	return agent
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	agent := s.loadA2AAgent(w, r)
	if agent == nil {
		return
	}

	description := fmt.Sprintf("A2A endpoint for agent %s", agent.Name)
	card := a2a.BuildCard(s.cfg.BaseURL, s.cfg.AppName, agent.ID, agent.Name, description, agent.Tools)
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	agent := s.loadA2AAgent(w, r)
	if agent == nil {
		return
	}

	var req a2a.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed task request")
		return
	}

	task, err := s.a2a.SubmitTask(agent, &req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.a2a.GetTask(chi.URLParam(r, "agentID"), chi.URLParam(r, "taskID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.a2a.CancelTask(chi.URLParam(r, "agentID"), chi.URLParam(r, "taskID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
