package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	signin "github.com/goliatone/go-signin"
	"github.com/goliatone/go-signin/activitymap"
	"github.com/goliatone/go-signin/middleware/jwtware"
	"github.com/goliatone/go-signin/pgstore"
	"github.com/goliatone/go-signin/redisstore"
	repo "github.com/goliatone/go-signin/repository"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config     *signin.BaseConfig
	logger     *glog.BaseLogger
	users      signin.CredentialStore
	challenges signin.ChallengeStore
	srv        *fiber.App
	closers    []func() error
}

func (a *App) Config() *signin.BaseConfig {
	return a.config
}

func (a *App) SetLogger(lgr *glog.BaseLogger) *App {
	a.logger = lgr
	return a
}

// GetLogger returns a named logger usable by the signin package
func (a *App) GetLogger(name string) signin.Logger {
	return newPrintfLogger(a.logger.GetLogger(name))
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "signin: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("SIGNIN_CONFIG"), "path to a JSON config file")
	seed := flag.String("seed", "", "create a user, format email:password")
	flag.Parse()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("signin"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	overrides := map[string]any{}
	if key := os.Getenv("SIGNIN_SIGNING_KEY"); key != "" {
		overrides["signing_key"] = key
	}

	cfg, err := signin.LoadConfig(*configPath, overrides)
	if err != nil {
		return err
	}

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg))
		fmt.Println("============")
	}

	signin.PasswordHashCost = cfg.Login.PasswordHashCost

	ctx := context.Background()
	app := (&App{config: cfg}).SetLogger(lgr)
	defer app.Close()

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}

	if *seed != "" {
		if err := SeedUser(ctx, app, *seed); err != nil {
			return err
		}
	}

	if err := WithChallengeStore(ctx, app); err != nil {
		return err
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		return err
	}

	serverLogger := app.GetLogger("server")

	go func() {
		if err := app.srv.Listen(cfg.HTTP.Addr); err != nil {
			serverLogger.Error("server stopped: %v", err)
		}
	}()

	sig := WaitExitSignal()
	serverLogger.Info("received %s, shutting down", sig)

	return app.srv.ShutdownWithTimeout(10 * time.Second)
}

// WithPersistence opens the user directory selected by database.driver
func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().Database

	switch cfg.Driver {
	case signin.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		app.closers = append(app.closers, func() error {
			pool.Close()
			return nil
		})

		docs := pgstore.NewDocuments(pool)
		if err := docs.Migrate(ctx); err != nil {
			return err
		}
		app.users = docs
	default:
		db, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return err
		}

		bunDB := bun.NewDB(db, sqlitedialect.New())
		app.closers = append(app.closers, bunDB.Close)

		mngr := repo.NewManager(bunDB)
		mngr.MustValidate()
		if err := mngr.Migrate(ctx); err != nil {
			return err
		}
		app.users = mngr.Users()
	}

	return nil
}

// WithChallengeStore keeps challenges in Redis when redis.addr is set
func WithChallengeStore(ctx context.Context, app *App) error {
	cfg := app.Config().Redis
	if cfg.Addr == "" {
		app.challenges = signin.NewMemoryChallengeStore()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	app.closers = append(app.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	app.challenges = redisstore.NewChallenges(client, cfg.Prefix)
	return nil
}

// WithHTTPServer wires the gate and mounts the sign in routes
func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.Config()

	catalog := signin.DefaultCatalog()
	if cfg.MessagesPath != "" {
		c, err := signin.LoadCatalogFile(cfg.MessagesPath)
		if err != nil {
			return err
		}
		catalog = c
	}

	activityLogger := app.GetLogger("activity")
	sink := activitymap.Sink(func(record activitymap.Normalized) error {
		if cfg.Debug {
			activityLogger.Debug("activity %s: %s", record.Verb, print.MaybePrettyJSON(record))
		}
		return nil
	})

	tokens := signin.NewTokenServiceFromConfig(cfg, app.GetLogger("tokens"))

	authenticator := signin.NewPasswordAuthenticator(app.users, tokens).
		WithLogger(app.GetLogger("auth")).
		WithLoginAttempts(cfg.Login.MaxAttempts, cfg.Login.CoolDownPeriod)

	notifier := signin.LogNotifier{Logger: app.GetLogger("notifier")}

	twoFactor := signin.NewCodeTwoFactor(app.challenges, notifier, app.users, tokens, catalog).
		WithLogger(app.GetLogger("2fa")).
		WithCodePolicy(cfg.TwoFactor.CodeLength, cfg.TwoFactor.GetCodeTTL(), cfg.TwoFactor.MaxAttempts).
		WithActivitySink(sink)

	gate := signin.NewGate(app.users, twoFactor, authenticator, catalog).
		WithLogger(app.GetLogger("gate")).
		WithActivitySink(sink)

	controller := signin.NewSignInController(gate, cfg,
		signin.WithControllerLogger(app.GetLogger("http")),
		signin.WithControllerDebug(cfg.Debug),
		signin.WithControllerTwoFactor(twoFactor),
		signin.WithControllerCatalog(catalog),
		signin.WithSecureCookies(cfg.HTTP.SecureCookies),
	)

	srv := fiber.New(fiber.Config{
		AppName:           "go-signin",
		EnablePrintRoutes: cfg.Debug,
		ErrorHandler:      signin.ErrorHandler(app.GetLogger("http"), catalog),
	})

	var handlers []fiber.Handler

	if cfg.HTTP.RateLimit > 0 {
		handlers = append(handlers, limiter.New(limiter.Config{
			Max:        cfg.HTTP.RateLimit,
			Expiration: time.Minute,
		}))
	}

	if cfg.HTTP.CSRF {
		srv.Use(csrf.New(csrf.Config{
			KeyLookup:      "header:X-Csrf-Token",
			CookieName:     "csrf_",
			CookieSecure:   cfg.HTTP.SecureCookies,
			CookieSameSite: "Lax",
			Expiration:     time.Hour,
		}))
		srv.Get(controller.Routes.SignIn, func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		}).Name("sign-in.get")
	}

	signin.RegisterSignInRoutes(srv, controller, handlers...)

	srv.Get("/session", jwtware.New(jwtware.Config{
		TokenValidator: tokens,
		TokenLookup:    "header:Authorization,cookie:" + cfg.GetContextKey(),
	}), func(c *fiber.Ctx) error {
		claims, _ := jwtware.ClaimsFromContext(c, "")
		return c.JSON(fiber.Map{
			"id":    claims.UserID(),
			"email": claims.Email,
			"role":  claims.UserRole,
		})
	}).Name("session.get")

	app.srv = srv
	return nil
}

// SeedUser creates the user described by seed, email:password
func SeedUser(ctx context.Context, app *App, seed string) error {
	email, password, ok := strings.Cut(seed, ":")
	if !ok || email == "" || password == "" {
		return fmt.Errorf("invalid seed %q, expected email:password", seed)
	}

	hash, err := signin.HashPassword(password)
	if err != nil {
		return err
	}

	user := &signin.UserRecord{
		Email:        email,
		Role:         signin.RoleMember,
		PasswordHash: hash,
	}

	switch store := app.users.(type) {
	case *repo.Users:
		_, err = store.Create(ctx, user)
	case *pgstore.Documents:
		id, herr := hashid.NewUUID(email)
		if herr != nil {
			return herr
		}
		user.ID = id.String()
		err = store.Put(ctx, user)
	default:
		err = fmt.Errorf("seeding not supported for %T", store)
	}

	if err == nil {
		app.GetLogger("seed").Info("seeded user %s", email)
	}
	return err
}

func (a *App) Close() {
	logger := a.GetLogger("app")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Error("close: %v", err)
		}
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
