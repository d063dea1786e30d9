// Steam adapter smoke-test tool
//
// Exercises the Steam Platform Adapter against real Steam data to verify
// that CountGames/FetchBatch/Transform/GetGameDetails behave correctly
// end to end. Useful for verifying an API key and for debugging Steam API
// issues during development.
//
// Usage:
//   go run cmd/test-steam-api/main.go -steamid=<id>
//
// If no steam id is provided, it uses a default public profile for
// testing.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/platform/steam"
)

func main() {
	var (
		steamID = flag.String("steamid", "76561198020403796", "Steam ID to test with")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		quiet   = flag.Bool("quiet", false, "Skip the intro and closing lines and log errors only")
	)
	flag.Parse()

	apiKey := os.Getenv("STEAM_API_KEY")
	if apiKey == "" {
		fmt.Println("STEAM_API_KEY environment variable not set")
		fmt.Println("Get your Steam API key from: https://steamcommunity.com/dev/apikey")
		os.Exit(1)
	}

	logger := logrus.New()
	switch {
	case *quiet:
		logger.SetLevel(logrus.ErrorLevel)
	case *verbose:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}

	adapter := steam.New(steam.Config{APIKey: apiKey, Logger: logger})

	if !*quiet {
		fmt.Printf("Testing Steam adapter with Steam ID: %s\n\n", *steamID)
	}

	fmt.Println("=== Testing CountGames ===")
	total, err := adapter.CountGames(*steamID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Total owned games: %d\n\n", total)

	fmt.Println("=== Testing FetchBatch ===")
	batch, err := adapter.FetchBatch(*steamID, 0, 5)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Fetched %d raw games:\n", len(batch))
	for _, raw := range batch {
		fmt.Printf("  appid=%v name=%v playtime_forever=%v\n", raw["appid"], raw["name"], raw["playtime_forever"])
	}
	fmt.Println()

	fmt.Println("=== Testing Transform ===")
	for i, raw := range batch {
		if i >= 2 {
			break
		}
		normalized, err := adapter.Transform(raw)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Printf("  %s (%s) playtime=%dmin\n", normalized.Title, normalized.PlatformCode, normalized.PlaytimeMinutes)
	}
	fmt.Println()

	testAppID := "730"
	fmt.Printf("=== Testing GetGameDetails for App ID %s ===\n", testAppID)
	details, err := adapter.GetGameDetails(testAppID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	} else {
		fmt.Printf("  name=%v developers=%v publishers=%v\n", details["name"], details["developers"], details["publishers"])
	}

	if !*quiet {
		fmt.Println("\nSteam adapter smoke test completed")
	}
}
