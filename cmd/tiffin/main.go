package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/conf/v3"
	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/config"
	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/session"
	"github.com/sirupsen/logrus"
)

const usage = `usage: tiffin <command> [args]

  login <email> <password>   sign in with password
  login-google               sign in through Google
  logout                     sign out and drop the local session
  kitchens                   list kitchens
  combos <kitchen-id>        list a kitchen's subscription combos
  cart                       show the current cart
  add <kitchen-id> <combo-id> <duration-type> <value> [starch spice portion]
  update <item-id> <value>   change an item's duration (0 removes it)
  remove <item-id>           remove an item
  clear                      empty the cart
  coupon <code>              apply a coupon
  address <pincode> <text>   set the delivery address
  summary                    show the checkout summary
  checkout                   create a purchase and pay for it`

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if err := run(log); err != nil {
		if errors.Is(err, client.ErrReauthRequired) {
			fmt.Fprintln(os.Stderr, "session expired: run 'tiffin login' to sign in again")
			os.Exit(1)
		}
		log.Error(err)
		os.Exit(1)
	}
}

func run(log *logrus.Logger) error {
	const prefix = "TIFFIN"
	var cfg config.CLI
	if help, err := conf.Parse(prefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	store := session.NewFileStore(sessionPath(cfg.SessionFile))

	cl, err := client.New(client.Config{
		BaseURL: cfg.API.URL,
		Store:   store,
		Log:     log,
		RPS:     cfg.API.RPS,
	})
	if err != nil {
		return fmt.Errorf("building api client: %w", err)
	}

	mgr := cart.NewManager(cart.ManagerConfig{Client: cl, Log: log})

	app := &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		client: cl,
		cart:   mgr,
		out:    os.Stdout,
	}

	ctx := context.Background()
	cmd := cfg.Args.Num(0)
	if cmd == "" {
		fmt.Println(usage)
		return nil
	}
	return app.dispatch(ctx, cmd, cfg.Args)
}

func sessionPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p)
}
