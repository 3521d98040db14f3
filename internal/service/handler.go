package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// Handler serves svc over the JSON protocol Client speaks.
func Handler(svc Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/read", func(w http.ResponseWriter, r *http.Request) {
		var q ReadQuery
		if !decodeRequest(w, r, &q) {
			return
		}
		decodeFilters(q.Filters)
		beans, err := svc.Read(r.Context(), q)
		respond(w, beansResponse{Beans: beans}, err)
	})
	mux.HandleFunc("POST /api/count", func(w http.ResponseWriter, r *http.Request) {
		var q CountQuery
		if !decodeRequest(w, r, &q) {
			return
		}
		decodeFilters(q.Filters)
		n, err := svc.Count(r.Context(), q)
		respond(w, countResponse{Count: n}, err)
	})
	mux.HandleFunc("POST /api/create", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		for i := range req.Beans {
			decodeValues(req.Beans[i].Values)
		}
		beans, err := svc.Create(r.Context(), req.ParentKeys, req.Beans)
		respond(w, beansResponse{Beans: beans}, err)
	})
	mux.HandleFunc("POST /api/update", func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		for i := range req.Modifications {
			for j := range req.Modifications[i].Changes {
				change := &req.Modifications[i].Changes[j]
				change.Old = decodeNumber(change.Old)
				change.New = decodeNumber(change.New)
			}
		}
		beans, err := svc.Update(r.Context(), req.Modifications)
		respond(w, beansResponse{Beans: beans}, err)
	})
	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req keysRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		beans, err := svc.Refresh(r.Context(), req.Keys)
		respond(w, beansResponse{Beans: beans}, err)
	})
	mux.HandleFunc("POST /api/delete", func(w http.ResponseWriter, r *http.Request) {
		var req keysRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		err := svc.Delete(r.Context(), req.Keys)
		respond(w, struct{}{}, err)
	})
	return mux
}

func decodeFilters(filters []Filter) {
	for i := range filters {
		filters[i].Value = decodeNumber(filters[i].Value)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "decode request: " + err.Error()})
		return false
	}
	return true
}

func respond(w http.ResponseWriter, payload any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	resp := errorResponse{Error: err.Error(), Kind: kindOf(err)}
	var batch *BatchError
	if errors.As(err, &batch) {
		resp.Failures = make(map[string]string, len(batch.Failures))
		for id, failure := range batch.Failures {
			resp.Failures[id] = failure.Error()
			if resp.Kind == "" {
				resp.Kind = kindOf(failure)
			}
		}
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrStale):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConstraint):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCanceled):
		return 499
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
