package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	auth "github.com/goliatone/go-fitauth"
	"github.com/goliatone/go-fitauth/middleware/jwtware"
)

// Options configures the HTTP application
type Options struct {
	Auther        auth.Authenticator
	TokenVerifier auth.TokenVerifier
	Logger        auth.Logger

	// ContextKey and AuthScheme fall back to jwtware defaults when empty
	ContextKey string
	AuthScheme string

	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	AccessLog       bool
	Debug           bool
}

// NewApp builds the fiber application with every route wired
func NewApp(opts Options) *fiber.App {
	if opts.Logger == nil {
		opts.Logger = auth.NoopLogger()
	}

	app := fiber.New(fiber.Config{
		AppName:               "fittrack",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(ErrorBody{
					Error:   auth.TextCodeInternal,
					Message: fe.Message,
				})
			}
			return Responder{Logger: opts.Logger}.Error(c, err)
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}

	app.Use(cors.New(corsConfig(opts.CORSOrigins)))

	controller := NewAuthController(opts.Auther, opts.Logger)
	controller.Debug = opts.Debug
	if opts.ContextKey != "" {
		controller.ContextKey = opts.ContextKey
	}

	protected := jwtware.New(jwtware.Config{
		TokenVerifier: opts.TokenVerifier,
		ContextKey:    controller.ContextKey,
		AuthScheme:    opts.AuthScheme,
		Logger:        opts.Logger,
	})

	RegisterRoutes(app, controller, protected, rateLimiter(opts))

	return app
}

// RegisterRoutes mounts the controller. Credential endpoints go through
// limit; profile endpoints through protected.
func RegisterRoutes(app fiber.Router, controller *AuthController, protected fiber.Handler, limit fiber.Handler) {
	routes := controller.Routes

	app.Get(routes.Health, controller.HealthGet)

	app.Post(routes.Register, limit, controller.RegisterPost)
	app.Post("/register", limit, controller.RegisterPost)
	app.Post(routes.Login, limit, controller.LoginPost)
	app.Post("/login", limit, controller.LoginPost)
	app.Post(routes.Refresh, limit, controller.RefreshPost)
	app.Post(routes.Logout, controller.LogoutPost)

	app.Get(routes.Me, protected, controller.MeGet)
	app.Delete(routes.Me, protected, controller.MeDelete)
	app.Put(routes.ChangePassword, protected, controller.ChangePasswordPut)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}

	if len(origins) > 0 && !(len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOrigins = strings.Join(origins, ",")
		cfg.AllowCredentials = true
	}

	return cfg
}

func rateLimiter(opts Options) fiber.Handler {
	if opts.RateLimitMax <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	window := opts.RateLimitWindow
	if window <= 0 {
		window = 15 * time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        opts.RateLimitMax,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorBody{
				Error:   "RATE_LIMITED",
				Message: "too many requests, please try again later",
			})
		},
	})
}
