package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/Sigmo/internal/utils"
)

type ctxKey int

const localeKey ctxKey = 1

const DefaultLocale = "zh"

// LocaleMiddleware picks the response language from ?lang= or Accept-Language.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := utils.DetermineLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), utils.SupportedLocales, DefaultLocale)
		ctx := context.WithValue(r.Context(), localeKey, locale)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeKey).(string); ok {
		return s
	}
	return DefaultLocale
}
