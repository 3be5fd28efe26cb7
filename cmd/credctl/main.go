// Package main provides an operator tool over the encrypted credential store
// and the authenticated API client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yurberz/AccessibleHealthcare/internal/apiclient"
	"github.com/yurberz/AccessibleHealthcare/internal/credentials"
	"github.com/yurberz/AccessibleHealthcare/internal/crypto"
	"github.com/yurberz/AccessibleHealthcare/pkg/config"
	"github.com/yurberz/AccessibleHealthcare/pkg/logger"
)

func main() {
	op := flag.String("op", "", "Operation: get | set | delete | has | keys | clear | whoami")
	key := flag.String("key", "", "Credential key (get/set/delete/has)")
	value := flag.String("value", "", "Credential value (set)")
	flag.Parse()

	if *op == "" {
		fmt.Fprintln(os.Stderr, "Error: -op is required")
		fmt.Fprintln(os.Stderr, "Example: credctl -op set -key auth_token -value abc123")
		os.Exit(1)
	}

	cfg := config.LoadWithDefaults()
	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	keyring := crypto.NewKeyring(&crypto.Config{
		ExternalKey: cfg.Storage.EncryptionKey,
	}, log.Logger)
	if keyring.Status() == crypto.KeySourceStatic {
		fmt.Fprintln(os.Stderr, "Warning: keyring is in degraded static-key mode; stored values are not confidential")
	}

	backend, err := credentials.NewSQLiteBackend(cfg.Storage.Path, log.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening credential storage: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	store := credentials.NewStore(backend, keyring, log.Logger)
	ctx := context.Background()

	needKey := map[string]bool{"get": true, "set": true, "delete": true, "has": true}
	if needKey[*op] && *key == "" {
		fmt.Fprintf(os.Stderr, "Error: -key is required for %q\n", *op)
		os.Exit(1)
	}

	switch *op {
	case "get":
		v, ok, err := store.Get(ctx, *key)
		if err != nil {
			fail(err)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "Key %q not found\n", *key)
			os.Exit(1)
		}
		fmt.Println(v)

	case "set":
		if *value == "" {
			fmt.Fprintln(os.Stderr, "Error: -value is required for set")
			os.Exit(1)
		}
		if err := store.Set(ctx, *key, *value); err != nil {
			fail(err)
		}

	case "delete":
		if err := store.Delete(ctx, *key); err != nil {
			fail(err)
		}

	case "has":
		ok, err := store.Has(ctx, *key)
		if err != nil {
			fail(err)
		}
		fmt.Println(ok)
		if !ok {
			os.Exit(1)
		}

	case "keys":
		keys, err := store.Keys(ctx)
		if err != nil {
			fail(err)
		}
		if len(keys) > 0 {
			fmt.Println(strings.Join(keys, "\n"))
		}

	case "clear":
		if err := store.ClearAll(ctx); err != nil {
			fail(err)
		}

	case "whoami":
		if cfg.APIBaseURL == "" {
			fmt.Fprintln(os.Stderr, "Error: AH_API_BASE_URL is required for whoami")
			os.Exit(1)
		}
		client, err := apiclient.New(&apiclient.Config{
			BaseURL:      cfg.APIBaseURL,
			AppVersion:   cfg.AppVersion,
			Timeout:      cfg.RequestTimeout,
			ProbeTimeout: cfg.ProbeTimeout,
		}, store, log.Logger)
		if err != nil {
			fail(err)
		}
		user, err := client.Me(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s <%s>\n", user.ID, user.Email)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown operation %q\n", *op)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
