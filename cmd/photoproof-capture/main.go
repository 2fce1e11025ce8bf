// Command photoproof-capture walks one capture through the full pipeline:
// freeze, tile tree, hardware-rooted signature, then online submission with
// offline fallback. Useful against a running photoproof-server, or standalone
// with -server "".
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/mhlotto/go-photoproof/photoproof"
	"github.com/mhlotto/go-photoproof/photoproof/client"
)

func main() {
	imagePath := flag.String("image", "", "path to a captured JPEG/PNG/WebP/HEIC file")
	server := flag.String("server", "http://localhost:8080", "verification server base URL (empty for offline only)")
	keyID := flag.String("key-id", "demo-device-key", "attestation key identifier")
	secret := flag.String("device-secret", "", "hex device secret for the software key handle (random when empty)")
	deviceClass := flag.String("device-class", "phone", "capture device class")
	lat := flag.Float64("lat", 0, "capture latitude (0 with lon 0 means absent)")
	lon := flag.Float64("lon", 0, "capture longitude")
	printKey := flag.Bool("print-key", false, "print the public key entry for the server's trusted-keys file")
	flag.Parse()

	if *imagePath == "" {
		log.Fatal("-image is required")
	}
	raw, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatalf("read image: %v", err)
	}

	deviceSecret, err := resolveSecret(*secret)
	if err != nil {
		log.Fatalf("device secret: %v", err)
	}
	handle, err := photoproof.NewSoftwareKeyHandle(deviceSecret, *keyID)
	if err != nil {
		log.Fatalf("key handle: %v", err)
	}
	if *printKey {
		pub := handle.PublicKey().(ed25519.PublicKey)
		entry, _ := json.Marshal(map[string]string{*keyID: base64.StdEncoding.EncodeToString(pub)})
		fmt.Println(string(entry))
	}

	bundle := photoproof.MetadataBundle{
		CapturedAt:  time.Now().UnixMilli(),
		DeviceClass: *deviceClass,
		Motion:      &photoproof.MotionSample{AccelX: 0.1, AccelY: 0.2, AccelZ: 9.8},
		SensorFlags: []string{"gps", "accelerometer"},
	}
	if *lat != 0 || *lon != 0 {
		bundle.Geo = &photoproof.GeoCoordinate{Latitude: *lat, Longitude: *lon, AccuracyM: 5}
	}

	engine, err := photoproof.NewEngine(photoproof.DefaultConfig(), nil)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	certifier := &client.Certifier{
		Client: &client.Client{BaseURL: *server},
		Engine: engine,
		Handle: handle,
	}
	if *server == "" {
		certifier.Client = nil
	}

	result, err := certifier.Certify(context.Background(), raw, bundle)
	if err != nil {
		log.Fatalf("certify: %v", err)
	}

	fmt.Printf("result   %s\n", result.ID)
	fmt.Printf("mode     %s\n", result.Mode)
	fmt.Printf("verdict  %s\n", result.Verdict)
	fmt.Printf("confidence %.2f\n", result.Confidence)

	names := make([]string, 0, len(result.PerCheck))
	for name := range result.PerCheck {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %v\n", name, result.PerCheck[name])
	}
}

func resolveSecret(hexSecret string) ([]byte, error) {
	if hexSecret != "" {
		return hex.DecodeString(hexSecret)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
