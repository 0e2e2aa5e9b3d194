package signin

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// Credential returns the credential carried by the request
func (r LoginRequest) Credential() Credential {
	return Credential{Identifier: r.Identifier, Secret: r.Password}
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 200)),
	)
}

// VerifyRequest payload
type VerifyRequest struct {
	ChallengeID string `form:"challenge_id" json:"challenge_id"`
	Code        string `form:"code" json:"code"`
	RememberMe  bool   `form:"remember_me" json:"remember_me"`
}

// Validate will run validation rules
func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ChallengeID, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Length(4, 10)),
	)
}

// SignInRoutes are the paths served by the controller
type SignInRoutes struct {
	SignIn string
	Verify string
}

// SignInController exposes the gate over HTTP
type SignInController struct {
	Debug                  bool
	Logger                 Logger
	Routes                 *SignInRoutes
	Gate                   *Gate
	TwoFactor              CodeVerifier
	Catalog                MessageCatalog
	CookieName             string
	SecureCookies          bool
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	now                    func() time.Time
}

// SignInControllerOption configures a SignInController
type SignInControllerOption func(*SignInController) *SignInController

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug dumps request payloads at debug level
func WithControllerDebug(debug bool) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.Debug = debug
		return c
	}
}

// WithControllerTwoFactor enables the verification route
func WithControllerTwoFactor(tf CodeVerifier) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.TwoFactor = tf
		return c
	}
}

// WithControllerCatalog sets the catalog used for validation messages
func WithControllerCatalog(catalog MessageCatalog) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		if catalog != nil {
			c.Catalog = catalog
		}
		return c
	}
}

// WithSecureCookies marks the session cookie Secure
func WithSecureCookies(secure bool) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.SecureCookies = secure
		return c
	}
}

// NewSignInController builds a controller for gate
func NewSignInController(gate *Gate, cfg Config, opts ...SignInControllerOption) *SignInController {
	if gate == nil {
		panic("Missing Gate in sign in controller...")
	}

	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.GetExtendedTokenDuration() > 0 {
		extendedCookieDuration = time.Duration(cfg.GetExtendedTokenDuration()) * time.Hour
	}

	c := &SignInController{
		Logger:  defLogger{},
		Gate:    gate,
		Catalog: DefaultCatalog(),
		Routes: &SignInRoutes{
			SignIn: "/sign-in",
			Verify: "/sign-in/verify",
		},
		CookieName:             cfg.GetContextKey(),
		SecureCookies:          true,
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
		now:                    time.Now,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterSignInRoutes mounts the controller routes on router
func RegisterSignInRoutes(router fiber.Router, controller *SignInController, handlers ...fiber.Handler) {
	signIn := append(append([]fiber.Handler{}, handlers...), controller.SignIn)
	router.Post(controller.Routes.SignIn, signIn...).Name("sign-in.post")

	if controller.TwoFactor != nil {
		verify := append(append([]fiber.Handler{}, handlers...), controller.VerifyCode)
		router.Post(controller.Routes.Verify, verify...).Name("sign-in-verify.post")
	}
}

// SignIn handles POST /sign-in
func (a *SignInController) SignIn(ctx *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := ctx.BodyParser(payload); err != nil {
		a.Logger.Error("sign in parse payload: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "unable to parse sign in payload")
	}

	if a.Debug {
		a.Logger.Debug("sign in payload: %s", print.MaybePrettyJSON(map[string]any{
			"identifier":  payload.Identifier,
			"remember_me": payload.RememberMe,
		}))
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	res, err := a.Gate.Evaluate(ctx.UserContext(), payload.Credential())
	if err != nil {
		return a.unexpectedError(ctx, res, err)
	}

	return a.respond(ctx, res, payload.RememberMe)
}

// VerifyCode handles POST /sign-in/verify
func (a *SignInController) VerifyCode(ctx *fiber.Ctx) error {
	payload := new(VerifyRequest)

	if err := ctx.BodyParser(payload); err != nil {
		a.Logger.Error("verify code parse payload: %v", err)
		return fiber.NewError(fiber.StatusBadRequest, "unable to parse verification payload")
	}

	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	res, err := a.TwoFactor.Verify(ctx.UserContext(), payload.ChallengeID, payload.Code)
	if err != nil {
		return a.unexpectedError(ctx, res, err)
	}

	return a.respond(ctx, res, payload.RememberMe)
}

func (a *SignInController) respond(ctx *fiber.Ctx, res StatusResult, extended bool) error {
	if res.IsAuthenticated() && res.Token != "" {
		duration := a.cookieDuration
		if extended {
			duration = a.extendedCookieDuration
		}
		a.setCookieToken(ctx, res.Token, duration)
	}

	return ctx.Status(HTTPStatus(res)).JSON(res)
}

// unexpectedError answers with the result of a failed attempt. The error
// itself is only logged.
func (a *SignInController) unexpectedError(ctx *fiber.Ctx, res StatusResult, err error) error {
	richErr := asRichError(err)
	a.Logger.Error("sign in unexpected error: %s [%s] %v", richErr.Message, richErr.Category, err)

	if res.Status == "" || res.Code == "" {
		res = newResult(a.Catalog, StatusError, MsgAuthenticationError)
	}
	res.Token = ""

	return ctx.Status(http.StatusInternalServerError).JSON(res)
}

func (a *SignInController) validationError(ctx *fiber.Ctx, err error) error {
	fields := FormatValidationErrorToMap(err)
	return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"status":     StatusError,
		"code":       MsgInvalidCredentials,
		"message":    a.Catalog.Lookup(MsgInvalidCredentials),
		"validation": fields,
	})
}

func (a *SignInController) setCookieToken(ctx *fiber.Ctx, val string, duration time.Duration) {
	ctx.Cookie(&fiber.Cookie{
		Name:     a.CookieName,
		Value:    val,
		Expires:  a.now().Add(duration),
		HTTPOnly: true,
		Secure:   a.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// HTTPStatus maps a StatusResult to a response status code
func HTTPStatus(res StatusResult) int {
	switch res.Status {
	case StatusAuthenticated:
		return http.StatusOK
	case StatusTwoFactor:
		return http.StatusAccepted
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	case StatusError:
		if res.Code == MsgAccountSuspended {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// ErrorHandler returns a fiber.ErrorHandler that maps errors to a generic
// JSON body by category. Error detail is logged, never sent.
func ErrorHandler(logger Logger, catalog MessageCatalog) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	if catalog == nil {
		catalog = DefaultCatalog()
	}

	return func(ctx *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(fiber.Map{
				"status":  StatusError,
				"message": fiberErr.Message,
			})
		}

		richErr := asRichError(err)

		logger.Error("request %s %s failed: %s [%s] %v",
			ctx.Method(), ctx.Path(), richErr.Message, richErr.Category, err)

		status := http.StatusInternalServerError
		code := MsgServiceUnavailable

		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz:
			status = http.StatusUnauthorized
			code = MsgAuthenticationError
		case goerrors.CategoryNotFound:
			status = http.StatusNotFound
			code = MsgUserNotFound
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			status = http.StatusBadRequest
			code = MsgInvalidCredentials
		}

		return ctx.Status(status).JSON(fiber.Map{
			"status":    StatusError,
			"code":      code,
			"message":   catalog.Lookup(code),
			"text_code": richErr.TextCode,
		})
	}
}

func asRichError(err error) *goerrors.Error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeAuthenticationFail)
	}
	return richErr
}
