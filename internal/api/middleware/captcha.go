package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"realty/site/internal/captcha"
	"realty/site/internal/config"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"
)

// visitorFrom reads the client identity that passes and rate-limit buckets are keyed on.
func visitorFrom(c *gin.Context) captcha.Visitor {
	return captcha.Visitor{
		IP:          c.ClientIP(),
		Fingerprint: c.GetHeader("X-BFP"),
		Session:     c.GetHeader("X-SPA"),
	}
}

// captchaScope is the route a pass is valid on. Unmatched requests have no scope.
func captchaScope(c *gin.Context) string {
	if c.FullPath() == "" {
		return ""
	}
	return c.Request.Method + " " + c.FullPath()
}

// CaptchaMiddleware marks the request as human when it carries a pass (X-C-T) for this
// route or solves a Turnstile challenge (X-C-V). A solved challenge is answered with a
// fresh pass in the X-C-T response header.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := captchaScope(c)
		if scope == "" {
			c.Next()
			return
		}
		visitor := visitorFrom(c)

		isHuman := false
		if pass := c.GetHeader("X-C-T"); pass != "" {
			isHuman = verifier.CheckPass(pass, visitor, scope)
		}

		if challenge := c.GetHeader("X-C-V"); !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, visitor)
			switch {
			case err != nil:
				// Left to the rate limiter as a non-human request.
				log.Printf("Error verifying Turnstile challenge from %s: %v", visitor, err)
			case verified:
				isHuman = true
				pass, err := verifier.IssuePass(visitor, scope, cfg.CaptchaTokenTTL)
				if err != nil {
					log.Printf("Error issuing captcha pass for %s: %v", visitor, err)
				} else {
					c.Header("X-C-T", pass)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}
