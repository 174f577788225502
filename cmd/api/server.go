package main

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	importhandler "github.com/vui-edu/records/internal/domain/importer/handler"
)

func newServer(deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			deps.Logger.Info("request",
				"method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(deps.Config.Server.RateLimitPerSecond),
			Burst: deps.Config.Server.RateLimitBurst,
		})))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Config.Observability.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	admin := e.Group("/api/admin", actorMiddleware(deps.Config.Auth.JWTSecret))
	deps.ImportHandler.RegisterRoutes(admin)
	deps.CatalogHandler.RegisterRoutes(admin)
	deps.StudentHandler.RegisterRoutes(admin)
	deps.WarningHandler.RegisterRoutes(admin)

	return e
}

// actorMiddleware extracts the caller identity from a bearer token so runs
// can be audited. Requests without a valid token still pass; authorization
// proper sits in front of this service.
func actorMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				return next(c)
			}
			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return next(c)
			}
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if email, ok := claims["email"].(string); ok && email != "" {
					c.Set(importhandler.ActorKey, email)
				} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
					c.Set(importhandler.ActorKey, sub)
				}
			}
			return next(c)
		}
	}
}
