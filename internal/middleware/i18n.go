// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coopcredito/solicitudes-backend/internal/i18n"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", resolveLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// resolveLanguage picks the first supported language of an Accept-Language
// header such as "es-CO,es;q=0.9,en;q=0.8".
func resolveLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" {
			continue
		}
		base := strings.ToLower(strings.SplitN(strings.ReplaceAll(tag, "_", "-"), "-", 2)[0])
		if i18n.IsSupported(base) {
			return base
		}
	}
	return i18n.DefaultLanguage()
}
