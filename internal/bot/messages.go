package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgStart = `
		Send me a video of an item you want to sell and I'll write listings for it.

		Talk about the item while filming: brand, size, condition and why you're selling help a lot.
		Add platform names as the caption (e.g. *ebay etsy*) to choose where to list.

		/platforms shows or sets your default platforms
		/listings shows your recent listings`
	MsgSendVideo     = "Send a video to create a listing. /start shows help."
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgUnknownCmd    = "Unknown command. /start shows help."
)

// =============================================================================
// Video processing messages
// =============================================================================

const (
	MsgProcessingVideo  = "🎬 Got it! Analyzing your video, this takes a minute..."
	MsgVideoTooLarge    = "The video is too large (%s). Telegram lets bots download files up to %s."
	MsgNotAVideo        = "That file doesn't look like a video."
	MsgVideoQueued      = "⏳ Queued, %d video(s) ahead of this one."
	MsgDownloadFailed   = "Couldn't download the video: %s"
	MsgProcessingFailed = `
		❌ Couldn't create a listing.

		Failed at: *%s*
		%s`
	MsgPlatformFailures = "⚠️ Could not generate content for: %s"
	MsgFrameFailures    = "⚠️ %s could not be analyzed."
)

// =============================================================================
// Result messages
// =============================================================================

const (
	MsgListingCreated = `
		✅ *%s*

		Price: %s
		Category: %s
		Condition: %s
		Confidence: %.0f%%

		Listing ID: ` + "`%s`"
	MsgPlatformContentHeader = "*%s*"
)

// =============================================================================
// Settings messages
// =============================================================================

const (
	MsgPlatformsCurrent = "Your default platforms: *%s*\n\nSet new ones with e.g. `/platforms ebay poshmark`, or `/platforms reset`."
	MsgPlatformsDefault = "You're using the default platforms: *%s*\n\nSet your own with e.g. `/platforms ebay poshmark`."
	MsgPlatformsUpdated = "✅ Default platforms set to: *%s*"
	MsgPlatformsReset   = "✅ Default platforms reset to: *%s*"
	MsgPlatformsUnknown = "Unknown platform: %s\n\nAvailable: %s"
	MsgPlatformsError   = "Couldn't update platforms."
)

// =============================================================================
// Listing history messages
// =============================================================================

const (
	MsgNoListings     = "You don't have any listings yet. Send a video to create one."
	MsgListingsHeader = "*Your recent listings:*\n"
	MsgListingsItem   = "\n• %s (%s) - %s"
	MsgListingsError  = "Couldn't load your listings."
)
