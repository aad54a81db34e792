package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"gamification/internal/auth"
	"gamification/internal/config"
	"gamification/internal/db"

	"gorm.io/gorm"
)

// issue-token mints a bearer token for an existing user. Staff status is
// read from the users table unless -offline is set.
func main() {
	userID := flag.Uint("user", 0, "user id")
	staff := flag.Bool("staff", false, "mark the token as staff (only with -offline)")
	offline := flag.Bool("offline", false, "skip the database lookup")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TTL_HOURS)")
	flag.Parse()

	if *userID == 0 {
		log.Fatal("-user is required")
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	identity := auth.Identity{UserID: *userID, IsStaff: *staff}
	if !*offline {
		conn, err := db.Open(cfg)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		var user db.User
		if err := conn.First(&user, *userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Fatalf("user %d not found", *userID)
			}
			log.Fatalf("load user: %v", err)
		}
		identity.IsStaff = user.IsStaff
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.JWTTTL()
	}
	token, err := auth.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer).GenerateToken(identity, lifetime)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	expires := time.Now().Add(lifetime).UTC().Format(time.RFC3339)
	log.Printf("token for user %d (staff=%t) expires %s", identity.UserID, identity.IsStaff, expires)
	fmt.Println(token)
}
