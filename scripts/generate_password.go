// scripts/generate_password.go
//
// Dev helper: prints a bcrypt hash for a password, for seeding users by hand.
//
//	go run scripts/generate_password.go <password>
package main

import (
	"flag"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	cost := flag.Int("cost", 12, "bcrypt cost")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: go run scripts/generate_password.go [-cost N] <password>")
	}
	password := flag.Arg(0)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), *cost)
	if err != nil {
		log.Fatalf("generating hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		log.Fatalf("hash verification failed: %v", err)
	}

	fmt.Println(string(hash))
}
