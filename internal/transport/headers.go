package transport

import (
	"net/http"
	"runtime"
	"strings"
)

// ClientHeaders are the headers sent on every FCM backend call, apart from
// Authorization.
func ClientHeaders(version string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Firebase-Client", "fire-admin-go-relay/"+version)
	h.Set("X-Goog-Api-Client", "gl-go/"+strings.TrimPrefix(runtime.Version(), "go")+" fire-admin/"+version)
	return h
}
