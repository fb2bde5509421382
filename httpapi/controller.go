package httpapi

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-fitauth"
	"github.com/goliatone/go-fitauth/middleware/jwtware"
	"github.com/goliatone/go-print"
)

// AuthControllerRoutes holds the route paths served by the controller
type AuthControllerRoutes struct {
	Register       string
	Login          string
	Refresh        string
	Logout         string
	Me             string
	ChangePassword string
	Health         string
}

// AuthController exposes the credential lifecycle over HTTP
type AuthController struct {
	Debug      bool
	Logger     auth.Logger
	Auther     auth.Authenticator
	Routes     *AuthControllerRoutes
	ContextKey string
	responder  Responder
}

// NewAuthController returns a controller with the default routes
func NewAuthController(auther auth.Authenticator, logger auth.Logger) *AuthController {
	if logger == nil {
		logger = auth.NoopLogger()
	}
	return &AuthController{
		Logger:     logger,
		Auther:     auther,
		ContextKey: "session",
		Routes: &AuthControllerRoutes{
			Register:       "/auth/register",
			Login:          "/auth/login",
			Refresh:        "/auth/refresh",
			Logout:         "/auth/logout",
			Me:             "/me",
			ChangePassword: "/me/password",
			Health:         "/health",
		},
		responder: Responder{Logger: logger},
	}
}

type tokenResponse struct {
	*auth.TokenPair
	Message string `json:"message"`
}

// PrincipalResponse is what GET /me returns
type PrincipalResponse struct {
	PrincipalID string    `json:"principalId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.responder.BadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.responder.Validation(c, err)
	}

	pair, err := a.Auther.Register(c.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return a.responder.Error(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tokenResponse{
		TokenPair: pair,
		Message:   "registered",
	})
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.responder.BadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.responder.Validation(c, err)
	}

	pair, err := a.Auther.Login(c.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return a.responder.Error(c, err)
	}

	return c.JSON(tokenResponse{
		TokenPair: pair,
		Message:   "logged in",
	})
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.responder.BadRequest(c, err)
	}

	// an absent or malformed refresh token is an authentication failure
	if err := payload.Validate(); err != nil {
		return a.responder.Error(c, auth.ErrRefreshTokenInvalid)
	}

	pair, err := a.Auther.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return a.responder.Error(c, err)
	}

	return c.JSON(tokenResponse{
		TokenPair: pair,
		Message:   "refreshed",
	})
}

// LogoutPost revokes the refresh token in the body, if any. It always
// succeeds so clients can discard their state unconditionally.
func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			return a.responder.BadRequest(c, err)
		}
	}

	if err := a.Auther.Logout(c.UserContext(), payload.RefreshToken); err != nil {
		a.Logger.Warn("logout revoke failed", "error", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	principalID, err := a.principalID(c)
	if err != nil {
		return a.responder.Error(c, err)
	}

	principal, err := a.Auther.Principal(c.UserContext(), principalID)
	if err != nil {
		return a.responder.Error(c, err)
	}

	res := PrincipalResponse{
		PrincipalID: principal.Identifier,
		CreatedAt:   principal.CreatedAt,
	}

	if a.Debug {
		fmt.Println("======= Principal ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("========================")
	}

	return c.JSON(res)
}

func (a *AuthController) ChangePasswordPut(c *fiber.Ctx) error {
	principalID, err := a.principalID(c)
	if err != nil {
		return a.responder.Error(c, err)
	}

	payload := new(ChangePasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.responder.BadRequest(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.responder.Validation(c, err)
	}

	if err := a.Auther.ChangePassword(c.UserContext(), principalID, payload.CurrentPassword, payload.NewPassword); err != nil {
		return a.responder.Error(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) MeDelete(c *fiber.Ctx) error {
	principalID, err := a.principalID(c)
	if err != nil {
		return a.responder.Error(c, err)
	}

	if err := a.Auther.DeletePrincipal(c.UserContext(), principalID); err != nil {
		return a.responder.Error(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) HealthGet(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (a *AuthController) principalID(c *fiber.Ctx) (string, error) {
	if session, ok := jwtware.SessionFromLocals(c, a.ContextKey); ok && session.GetPrincipalID() != "" {
		return session.GetPrincipalID(), nil
	}
	return auth.PrincipalFromContext(c.UserContext())
}
