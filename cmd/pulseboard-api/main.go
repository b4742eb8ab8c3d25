package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pulseboard/api"
	"pulseboard/suprsend"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	apiKey := os.Getenv("SUPRSEND_API_KEY")
	if apiKey == "" {
		log.Fatal("missing SUPRSEND_API_KEY")
	}
	logger := log.New()
	hub := suprsend.NewClient(os.Getenv("SUPRSEND_BASE_URL"), apiKey, logger)

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	prefTTL := time.Minute
	if v := os.Getenv("PREFERENCES_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			log.Fatalf("invalid PREFERENCES_CACHE_TTL: %v", err)
		}
		prefTTL = d
	}
	cachedHub := suprsend.NewCache(hub, rc, prefTTL)

	dedupeTTL := 24 * time.Hour
	if v := os.Getenv("TRIGGER_DEDUPE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid TRIGGER_DEDUPE_TTL: %v", err)
		}
		dedupeTTL = d
	}
	deduper := api.NewRedisDeduper(rc, dedupeTTL)

	otpTTL := 5 * time.Minute
	if v := os.Getenv("OTP_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid OTP_TTL: %v", err)
		}
		otpTTL = d
	}
	otps := api.NewOTPStore(rc, otpTTL)

	var auth *api.Auth
	if secret := os.Getenv("SESSION_JWT_SECRET"); secret != "" {
		auth = api.NewLocalAuth([]byte(secret), "pulseboard")
	} else {
		audience := os.Getenv("AUTH_AUDIENCE")
		domainName := os.Getenv("AUTH_DOMAIN")
		if audience == "" || domainName == "" {
			log.Fatal("missing auth config: set SESSION_JWT_SECRET or AUTH_AUDIENCE/AUTH_DOMAIN")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domainName)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, audience, "https://"+domainName+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, cachedHub, auth, auth, deduper, otps, os.Getenv("OTP_WORKFLOW_SLUG"), logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
