package router

import (
	"github.com/denmor86/loyalty-engine/internal/config"
	"github.com/denmor86/loyalty-engine/internal/network/handlers"
	"github.com/denmor86/loyalty-engine/internal/network/middleware"
	"github.com/denmor86/loyalty-engine/internal/records"
	"github.com/denmor86/loyalty-engine/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

const TokenSecretAlgo = "HS256"

type Router struct {
	Config      config.Config
	TokenAuth   *jwtauth.JWTAuth
	Ledger      services.LedgerService
	Purchases   services.PurchaseService
	Redemptions services.RedemptionService
}

func NewRouter(cfg config.Config, store records.Store) *Router {
	audit := services.NewAuditRecorder(store)
	ledger := services.NewLedger(store, audit, cfg.Ledger.RetryCount, cfg.Ledger.RetryBackoff)
	prices := services.NewPriceResolver(store)
	programs := services.NewProgramConfigResolver(store)

	return &Router{
		Config:      cfg,
		TokenAuth:   jwtauth.New(TokenSecretAlgo, []byte(cfg.Server.JWTSecret), nil),
		Ledger:      ledger,
		Purchases:   services.NewPurchases(store, prices, programs, ledger),
		Redemptions: services.NewRedemptions(store, ledger),
	}
}

func (router *Router) HandleRouter() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.LogHandle)
		// события хост-платформы принимаются только с её JWT
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(router.TokenAuth))
			r.Use(jwtauth.Authenticator(router.TokenAuth))
			r.Route("/events", func(r chi.Router) {
				r.Post("/purchase", handlers.PurchaseEventHandler(router.Purchases))
				r.Post("/card", handlers.CardEventHandler(router.Ledger))
				r.Post("/redemption", handlers.RedemptionEventHandler(router.Redemptions))
			})
		})
		r.Post("/cards/validate", handlers.CardNumberHandler())
	})
	return r
}
