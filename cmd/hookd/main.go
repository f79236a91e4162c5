package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"swapguard/internal/app"
	"swapguard/internal/config"
	"swapguard/internal/domain"
	"swapguard/internal/security"

	"github.com/joho/godotenv"
)

func main() {
	mint := flag.String("mint-token", "", "print a signed API token for this account and exit")
	ttl := flag.Duration("token-ttl", time.Hour, "lifetime of a minted token")
	flag.Parse()

	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed load .env, error=%v", err)
	}

	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/hookd/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed load config, error=%v", err)
	}

	if *mint != "" {
		if err = mintToken(&cfg.Security.JWT, *mint, *ttl); err != nil {
			log.Fatalf("Failed mint token, error=%v", err)
		}
		return
	}

	if err = app.Run(cfg); err != nil {
		log.Fatalf("App run is failed, error=%v", err)
	}
}

func mintToken(cfg *config.JWTConfig, account string, ttl time.Duration) error {
	addr, err := domain.ParseAddress(account)
	if err != nil {
		return err
	}
	signer, err := security.NewRS256Signer(cfg)
	if err != nil {
		return err
	}
	token, err := signer.MintAccount(addr, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
