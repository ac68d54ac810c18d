package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Nystya/txgroup/domain"
	"github.com/Nystya/txgroup/repository/database"
	"github.com/Nystya/txgroup/repository/exception"
	"github.com/Nystya/txgroup/service"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type AdminDeps struct {
	Manager  service.TransactionManager
	Registry database.GroupRegistry
	Recorder exception.Recorder
	Metrics  http.Handler
	Logger   *zap.Logger
}

type groupState struct {
	GroupID string       `json:"groupId"`
	State   domain.State `json:"state"`
	Status  string       `json:"status"`
}

type joinRequest struct {
	UnitID    string `json:"unitId"`
	UnitType  string `json:"unitType"`
	RemoteKey string `json:"remoteKey"`
}

// NewAdminRouter exposes the group lifecycle and read-only views of the
// coordinator.
func NewAdminRouter(deps AdminDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := mux.NewRouter()

	fail := func(w http.ResponseWriter, groupID string, err error) {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			deps.Logger.Error("group operation failed", zap.String("group_id", groupID), zap.Error(err))
		}

		writeJSON(w, status, map[string]string{"error": err.Error()})
	}

	r.HandleFunc("/groups/{groupId}", func(w http.ResponseWriter, req *http.Request) {
		groupID := mux.Vars(req)["groupId"]
		if err := deps.Manager.Begin(req.Context(), groupID); err != nil {
			fail(w, groupID, err)
			return
		}

		writeJSON(w, http.StatusCreated, groupState{GroupID: groupID, State: domain.StateUnknown, Status: domain.StateUnknown.String()})
	}).Methods(http.MethodPost)

	r.HandleFunc("/groups/{groupId}", func(w http.ResponseWriter, req *http.Request) {
		_ = deps.Manager.Close(req.Context(), mux.Vars(req)["groupId"])
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/groups/{groupId}/units", func(w http.ResponseWriter, req *http.Request) {
		groupID := mux.Vars(req)["groupId"]

		body := joinRequest{}
		decoder := json.NewDecoder(req.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		unit := service.TransactionUnit{UnitID: body.UnitID, UnitType: body.UnitType, MessageContextID: body.RemoteKey}
		if err := deps.Manager.Join(req.Context(), groupID, unit); err != nil {
			fail(w, groupID, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	complete := func(finish func(service.TransactionManager, *http.Request, string) error) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			groupID := mux.Vars(req)["groupId"]
			if err := finish(deps.Manager, req, groupID); err != nil {
				fail(w, groupID, err)
				return
			}

			state := deps.Manager.TransactionState(req.Context(), groupID)
			writeJSON(w, http.StatusOK, groupState{GroupID: groupID, State: state, Status: state.String()})
		}
	}

	r.HandleFunc("/groups/{groupId}/commit", complete(func(m service.TransactionManager, req *http.Request, groupID string) error {
		return m.Commit(req.Context(), groupID)
	})).Methods(http.MethodPost)

	r.HandleFunc("/groups/{groupId}/rollback", complete(func(m service.TransactionManager, req *http.Request, groupID string) error {
		return m.Rollback(req.Context(), groupID)
	})).Methods(http.MethodPost)

	r.HandleFunc("/groups", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, deps.Registry.GroupIDs())
	}).Methods(http.MethodGet)

	r.HandleFunc("/groups/{groupId}/state", func(w http.ResponseWriter, req *http.Request) {
		groupID := mux.Vars(req)["groupId"]
		state := deps.Manager.TransactionState(req.Context(), groupID)

		writeJSON(w, http.StatusOK, groupState{GroupID: groupID, State: state, Status: state.String()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/groups/{groupId}/units", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, deps.Registry.UnitsOfGroup(mux.Vars(req)["groupId"]))
	}).Methods(http.MethodGet)

	r.HandleFunc("/groups/{groupId}/exceptions", func(w http.ResponseWriter, req *http.Request) {
		if deps.Recorder == nil {
			writeJSON(w, http.StatusOK, []*domain.ExceptionRecord{})
			return
		}

		records, err := deps.Recorder.Exceptions(req.Context(), mux.Vars(req)["groupId"])
		if err != nil {
			deps.Logger.Error("could not list exceptions", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}

		if records == nil {
			records = []*domain.ExceptionRecord{}
		}

		writeJSON(w, http.StatusOK, records)
	}).Methods(http.MethodGet)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(r)
}

func statusOf(err error) int {
	var (
		duplicate domain.DuplicateGroupError
		notFound  domain.GroupNotFoundError
		conflict  domain.StateConflictError
		joinErr   domain.GroupJoinError
	)

	switch {
	case errors.Is(err, domain.ErrEmptyGroupID), errors.As(err, &joinErr):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate), errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
