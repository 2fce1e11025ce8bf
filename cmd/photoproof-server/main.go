// Command photoproof-server runs a demo verification server.
package main

import (
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/mhlotto/go-photoproof/photoproof"
	"github.com/mhlotto/go-photoproof/photoproof/httpserver"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "engine config YAML (defaults apply when empty)")
	trustedKeys := flag.String("trusted-keys", "", "JSON file mapping key IDs to base64 ed25519 public keys")
	flag.Parse()

	cfg := photoproof.DefaultConfig()
	if *configPath != "" {
		loaded, err := photoproof.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	resolver, err := loadResolver(*trustedKeys)
	if err != nil {
		log.Fatalf("load trusted keys: %v", err)
	}

	engine, err := photoproof.NewEngine(cfg, resolver)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	endpoint := *addr
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://localhost" + endpoint
	}

	mux := httpserver.NewMux(httpserver.HandlerOptions{
		Engine:          engine,
		ServiceEndpoint: endpoint,
	})

	log.Printf("starting photoproof verification server on %s trusted-keys=%d", *addr, len(resolver))
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func loadResolver(path string) (photoproof.StaticKeyResolver, error) {
	resolver := photoproof.StaticKeyResolver{}
	if path == "" {
		return resolver, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var encoded map[string]string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for keyID, b64 := range encoded {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", keyID, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("key %q: want %d bytes, got %d", keyID, ed25519.PublicKeySize, len(raw))
		}
		resolver[keyID] = crypto.PublicKey(ed25519.PublicKey(raw))
	}
	return resolver, nil
}
