// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/ctlproxy/pkg/transport"
)

type inflightEntry struct {
	Transport string `json:"transport"`
	Task
}

// InflightHandler lists the requests awaiting upstream on GET. DELETE
// ?ident=<ident>&msg_id=<msg_id> abandons the matching requests, with ident
// written the way logs render it.
func InflightHandler(routers ...*Router) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			entries := []inflightEntry{}
			for _, r := range routers {
				for _, t := range r.Inflight() {
					entries = append(entries, inflightEntry{Transport: r.config.Transport, Task: t})
				}
			}
			writeJSON(w, http.StatusOK, entries)

		case http.MethodDelete:
			q := req.URL.Query()
			identity, err := transport.ParseIdentity(q.Get("ident"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			n := 0
			for _, r := range routers {
				n += r.Cancel(identity, q.Get("msg_id"))
			}
			writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})

		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
