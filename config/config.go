package config

import (
	"time"

	"github.com/ardanlabs/conf/v3"
)

// CLI configures the tiffin storefront client.
type CLI struct {
	conf.Version
	Args conf.Args

	API struct {
		URL string `conf:"default:http://localhost:3000"`
		RPS float64
	}

	SessionFile string `conf:"default:.tiffin/session.json"`

	Checkout struct {
		Method string `conf:"default:PAYPAL"`
	}

	Paypal struct {
		ClientID string
		Secret   string `conf:"mask"`
		URL      string `conf:"default:https://api.sandbox.paypal.com"`
	}

	Stripe struct {
		APISecret  string `conf:"mask"`
		SuccessURL string `conf:"default:https://tiffinbox.example/checkout/success"`
		CancelURL  string `conf:"default:https://tiffinbox.example/checkout/cancel"`
	}

	Oauth struct {
		DiscoveryTimeout time.Duration `conf:"default:30s"`
		Google           struct {
			Client      string
			Secret      string `conf:"mask"`
			URL         string `conf:"default:https://accounts.google.com"`
			RedirectURL string `conf:"default:http://localhost:8910/oauth/callback"`
		}
	}

	Verbose bool
}

// MockAPI configures the backend emulator binary.
type MockAPI struct {
	conf.Version

	Web struct {
		Address         string        `conf:"default:0.0.0.0:3000"`
		ReadTimeout     time.Duration `conf:"default:5s"`
		WriteTimeout    time.Duration `conf:"default:10s"`
		IdleTimeout     time.Duration `conf:"default:120s"`
		ShutdownTimeout time.Duration `conf:"default:20s"`
	}

	Auth struct {
		TokenTTL time.Duration `conf:"default:15m"`
	}

	Cart struct {
		TTL time.Duration `conf:"default:30m"`
	}

	Seed struct {
		Email    string `conf:"default:demo@tiffinbox.example"`
		Password string `conf:"default:demo-password,mask"`
	}
}
