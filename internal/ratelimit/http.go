package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"gopartsync_api/pkg/api"
)

// Classifier определяет класс трафика входящего запроса.
type Classifier func(r *http.Request) Class

// KeyFunc возвращает ключ клиента: "user:<id>" для аутентифицированных, иначе "ip:<адрес>".
type KeyFunc func(r *http.Request) string

// PrefixClassifier: /api/auth/ освобождён, пути с storefrontPrefixes идут в класс витрины.
func PrefixClassifier(storefrontPrefixes ...string) Classifier {
	return func(r *http.Request) Class {
		path := r.URL.Path
		if strings.HasPrefix(path, "/api/auth/") {
			return ClassAuth
		}
		for _, p := range storefrontPrefixes {
			if strings.HasPrefix(path, p) {
				return ClassStorefront
			}
		}
		return ClassGeneral
	}
}

func ClientKey(userID, ip string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + ip
}

// ClientIP берёт первый адрес из X-Forwarded-For, иначе RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *Limiter) HTTPMiddleware(classify Classifier, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := classify(r)
			if class == ClassAuth {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Admit(key(r), class)
			if d.Limit >= 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}
			if !d.Allowed {
				api.WriteTooManyRequests(w, d.RetryAfter, r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
