package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/raine/video-lister/config"
	"github.com/raine/video-lister/internal/app"
	"github.com/raine/video-lister/internal/storage"
)

func main() {
	var ownerID string
	var listingID string
	var limit int

	flag.StringVar(&ownerID, "owner", "", "List an owner's recent listings (e.g. tg:12345)")
	flag.StringVar(&listingID, "id", "", "Listing ID to fetch")
	flag.IntVar(&limit, "limit", 10, "Number of listings to show with -owner")
	flag.Parse()

	// Accept listing ID as positional argument
	if listingID == "" && flag.NArg() > 0 {
		listingID = flag.Arg(0)
	}

	if listingID == "" && ownerID == "" {
		fmt.Fprintf(os.Stderr, "Usage: get-listing -id <listing_id>\n")
		fmt.Fprintf(os.Stderr, "       get-listing <listing_id>\n")
		fmt.Fprintf(os.Stderr, "       get-listing -owner <owner_id> [-limit n]\n")
		os.Exit(1)
	}

	config.LoadEnvFile()
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	store, err := app.OpenStore(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening listing store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	var out any
	if listingID != "" {
		l, err := store.GetListing(ctx, listingID)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Listing %s not found\n", listingID)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching listing %s: %v\n", listingID, err)
			os.Exit(1)
		}
		out = l
	} else {
		listings, err := store.ListListingsByOwner(ctx, ownerID, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing listings for %s: %v\n", ownerID, err)
			os.Exit(1)
		}
		out = listings
	}

	// Pretty print as JSON
	output, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}
