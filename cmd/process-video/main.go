package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raine/video-lister/config"
	"github.com/raine/video-lister/internal/app"
	"github.com/raine/video-lister/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var ownerID string
	var platforms string
	var jsonOutput bool

	flag.StringVar(&ownerID, "owner", "cli", "Owner ID stored on the listing")
	flag.StringVar(&platforms, "platforms", "", "Comma separated platforms (default: "+strings.Join(pipeline.DefaultPlatforms, ",")+")")
	flag.BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: process-video [-owner id] [-platforms ebay,etsy] [-json] <video-path>\n")
		fmt.Fprintf(os.Stderr, "\nPlatforms: %s\n", strings.Join(pipeline.KnownPlatforms(), ", "))
		os.Exit(1)
	}
	videoPath := flag.Arg(0)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if missing := settings.MissingKeys(false); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "Missing required config: %s\n", strings.Join(missing, ", "))
		os.Exit(1)
	}
	if !settings.Debug {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStore(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening listing store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	p, err := app.NewPipeline(ctx, settings, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing pipeline: %v\n", err)
		os.Exit(1)
	}

	var requested []string
	if platforms != "" {
		requested = strings.Split(platforms, ",")
	}

	res, err := p.Process(ctx, pipeline.Request{
		VideoPath: videoPath,
		OwnerID:   ownerID,
		Platforms: requested,
	})
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "Failed at %s: %v\n", se.Stage, err)
		} else {
			fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		}
		os.Exit(1)
	}

	if jsonOutput {
		output, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(output))
		return
	}

	printResult(res)
}

func printResult(res *pipeline.Result) {
	l := res.Listing
	fmt.Printf("Listing:     %s\n", res.ListingID)
	fmt.Printf("Title:       %s\n", l.Title)
	fmt.Printf("Price:       %.2f\n", l.Price)
	fmt.Printf("Category:    %s\n", l.Category)
	fmt.Printf("Condition:   %s\n", l.Condition)
	if l.Brand != "" {
		fmt.Printf("Brand:       %s\n", l.Brand)
	}
	fmt.Printf("Confidence:  %.2f\n", res.Confidence)
	if len(res.FrameFailures) > 0 {
		fmt.Printf("Frames:      %d failed\n", len(res.FrameFailures))
	}

	for _, id := range pipeline.KnownPlatforms() {
		c, ok := res.PlatformContent[id]
		if !ok {
			continue
		}
		fmt.Println("\n" + strings.Repeat("-", 50))
		fmt.Printf("%s (score %.2f)\n\n", strings.ToUpper(id), c.OptimizationScore)
		if c.Title != "" {
			fmt.Printf("%s\n\n", c.Title)
		}
		fmt.Println(c.Body)
		if len(c.Hashtags) > 0 {
			fmt.Printf("\n%s\n", strings.Join(c.Hashtags, " "))
		}
	}

	for id, failure := range res.PlatformFailures {
		fmt.Printf("\n%s failed: %v\n", id, failure)
	}
}
