package main

import (
	"net/http"

	"github.com/adityalohuni/formaudit/internal/httpx"
	"github.com/adityalohuni/formaudit/internal/session"
)

func trackSSE(reg *session.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := clientInfoFromRequest(r, "sse")
		clientID := ensureClient(reg, w, r, info)
		if clientID != "" {
			go func() {
				<-r.Context().Done()
				reg.Unregister(clientID)
			}()
		}
		next.ServeHTTP(w, r)
	})
}

// trackStreamable registers clients on the long-lived GET stream and only
// refreshes them on individual POSTs.
func trackStreamable(reg *session.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := clientInfoFromRequest(r, "streamable")
		if r.Method == http.MethodGet {
			clientID := ensureClient(reg, w, r, info)
			if clientID != "" {
				go func() {
					<-r.Context().Done()
					reg.Unregister(clientID)
				}()
			}
			next.ServeHTTP(w, r)
			return
		}
		if clientID := clientIDFromRequest(r); clientID != "" {
			reg.Touch(clientID, info)
		}
		next.ServeHTTP(w, r)
	})
}

func ensureClient(reg *session.Registry, w http.ResponseWriter, r *http.Request, info session.ClientInfo) string {
	clientID := clientIDFromRequest(r)
	if clientID == "" {
		clientID = reg.Register("", info)
		w.Header().Set("X-Assigned-Client-Id", clientID)
		return clientID
	}
	reg.Touch(clientID, info)
	return clientID
}

func clientInfoFromRequest(r *http.Request, transport string) session.ClientInfo {
	return session.ClientInfo{
		Name:       r.Header.Get("X-Client-Name"),
		Transport:  transport,
		RemoteAddr: httpx.ClientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

func clientIDFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Client-Id"); v != "" {
		return v
	}
	return r.Header.Get("Mcp-Session-Id")
}
