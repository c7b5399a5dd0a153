package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type botApiMock struct {
	mock.Mock

	mu   sync.Mutex
	sent []string
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, msg.Text)
		m.mu.Unlock()
	}
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.Get(0).(string), args.Error(1)
}

// sentTexts returns the text of every message sent so far, in order.
func (m *botApiMock) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type processorMock struct {
	mock.Mock
}

func (m *processorMock) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Result), args.Error(1)
}

type fakeStore struct {
	mu        sync.Mutex
	platforms map[string][]string
	listings  []listing.Listing
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{platforms: make(map[string][]string)}
}

func (s *fakeStore) GetOwnerPlatforms(ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platforms[ownerID], s.err
}

func (s *fakeStore) SetOwnerPlatforms(ownerID string, platforms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if len(platforms) == 0 {
		delete(s.platforms, ownerID)
		return nil
	}
	s.platforms[ownerID] = platforms
	return nil
}

func (s *fakeStore) ListListingsByOwner(ctx context.Context, ownerID string, limit int) ([]listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []listing.Listing
	for _, l := range s.listings {
		if l.OwnerID == ownerID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, s.err
}

const testUserID = int64(1234)

type testBot struct {
	bot   *Bot
	tg    *botApiMock
	proc  *processorMock
	store *fakeStore
}

func setup(t *testing.T) *testBot {
	t.Helper()
	tg := new(botApiMock)
	tg.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()

	proc := new(processorMock)
	store := newFakeStore()
	b := NewBot(tg, proc, store, NewVideoDownloader(t.TempDir()), nil)
	t.Cleanup(b.Shutdown)
	return &testBot{bot: b, tg: tg, proc: proc, store: store}
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: testUserID},
			Chat: &tgbotapi.Chat{ID: testUserID},
			Text: text,
		},
	}
}

func videoUpdate(fileID, caption string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:    &tgbotapi.User{ID: testUserID},
			Chat:    &tgbotapi.Chat{ID: testUserID},
			Caption: caption,
			Video:   &tgbotapi.Video{FileID: fileID, FileName: "clip.mp4", FileSize: 1024},
		},
	}
}

func videoServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("fake video"))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Success:   true,
		ListingID: "listing-1",
		Listing: &listing.Listing{
			ID:        "listing-1",
			Title:     "Vintage Levi's 501",
			Price:     45,
			Category:  "clothing",
			Condition: "good",
		},
		PlatformContent: map[string]*listing.PlatformContent{
			"ebay":      {Platform: "ebay", Title: "Levi's 501 Jeans 32x30", Body: "Classic jeans."},
			"instagram": {Platform: "instagram", Body: "Thrifted gem! DM to buy.", Hashtags: []string{"#levis", "#vintage"}},
		},
		PlatformFailures: map[string]*pipeline.StageError{
			"etsy": {Stage: pipeline.StageContent, Kind: pipeline.ErrContentGeneration, Platform: "etsy", FrameIndex: -1},
		},
		Confidence: 0.86,
	}
}

func TestHandleUpdate_Start(t *testing.T) {
	tb := setup(t)
	tb.bot.handleUpdateSync(context.Background(), textUpdate("/start"))

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, formatReplyText(MsgStart), texts[0])
}

func TestHandleUpdate_PlainTextAsksForVideo(t *testing.T) {
	tb := setup(t)
	tb.bot.handleUpdateSync(context.Background(), textUpdate("hello"))
	assert.Equal(t, []string{MsgSendVideo}, tb.tg.sentTexts())
}

func TestHandleUpdate_UnknownCommand(t *testing.T) {
	tb := setup(t)
	tb.bot.handleUpdateSync(context.Background(), textUpdate("/nope"))
	assert.Equal(t, []string{MsgUnknownCmd}, tb.tg.sentTexts())
}

func TestHandleUpdate_IgnoresUpdatesWithoutSender(t *testing.T) {
	tb := setup(t)
	tb.bot.handleUpdateSync(context.Background(), tgbotapi.Update{})
	tb.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}})
	assert.Empty(t, tb.tg.sentTexts())
}

func TestHandleVideo_Success(t *testing.T) {
	tb := setup(t)
	ts := videoServer(t)
	tb.tg.On("GetFileDirectURL", "vid-1").Return(ts.URL+"/vid-1.mp4", nil)

	var processedPath string
	tb.proc.On("Process", mock.Anything, mock.MatchedBy(func(req pipeline.Request) bool {
		data, err := os.ReadFile(req.VideoPath)
		processedPath = req.VideoPath
		return err == nil && string(data) == "fake video" &&
			req.OwnerID == "tg:1234" && len(req.Platforms) == 0
	})).Return(sampleResult(), nil).Once()

	tb.bot.handleUpdateSync(context.Background(), videoUpdate("vid-1", ""))
	tb.proc.AssertExpectations(t)

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 4)
	assert.Equal(t, MsgProcessingVideo, texts[0])

	summary := texts[1]
	assert.Contains(t, summary, "Vintage Levi's 501")
	assert.Contains(t, summary, "$45")
	assert.Contains(t, summary, "86%")
	assert.Contains(t, summary, "listing-1")
	assert.Contains(t, summary, "Could not generate content for: Etsy")

	// Platform messages are sorted by id
	assert.True(t, strings.HasPrefix(texts[2], "*eBay*"))
	assert.Contains(t, texts[2], "Levi's 501 Jeans 32x30")
	assert.True(t, strings.HasPrefix(texts[3], "*Instagram*"))
	assert.Contains(t, texts[3], "#levis #vintage")

	assert.NoFileExists(t, processedPath, "downloaded video is removed")
}

func TestHandleVideo_CaptionSelectsPlatforms(t *testing.T) {
	tb := setup(t)
	ts := videoServer(t)
	tb.tg.On("GetFileDirectURL", "vid-1").Return(ts.URL, nil)
	tb.store.platforms["tg:1234"] = []string{"etsy"}

	tb.proc.On("Process", mock.Anything, mock.MatchedBy(func(req pipeline.Request) bool {
		return assert.ObjectsAreEqual([]string{"ebay", "poshmark"}, req.Platforms)
	})).Return(sampleResult(), nil).Once()

	tb.bot.handleUpdateSync(context.Background(), videoUpdate("vid-1", "Selling these! eBay, poshmark"))
	tb.proc.AssertExpectations(t)
}

func TestHandleVideo_UsesSavedPlatforms(t *testing.T) {
	tb := setup(t)
	ts := videoServer(t)
	tb.tg.On("GetFileDirectURL", "vid-1").Return(ts.URL, nil)
	tb.store.platforms["tg:1234"] = []string{"etsy", "facebook"}

	tb.proc.On("Process", mock.Anything, mock.MatchedBy(func(req pipeline.Request) bool {
		return assert.ObjectsAreEqual([]string{"etsy", "facebook"}, req.Platforms)
	})).Return(sampleResult(), nil).Once()

	tb.bot.handleUpdateSync(context.Background(), videoUpdate("vid-1", "my old jacket"))
	tb.proc.AssertExpectations(t)
}

func TestHandleVideo_PipelineFailure(t *testing.T) {
	tb := setup(t)
	ts := videoServer(t)
	tb.tg.On("GetFileDirectURL", "vid-1").Return(ts.URL, nil)

	stageErr := &pipeline.StageError{
		Stage:      pipeline.StageFrameAnalysis,
		Kind:       pipeline.ErrFrameAnalysisThreshold,
		FrameIndex: -1,
		Err:        errors.New("0 of 5 frames analyzed"),
	}
	tb.proc.On("Process", mock.Anything, mock.Anything).Return(nil, stageErr).Once()

	tb.bot.handleUpdateSync(context.Background(), videoUpdate("vid-1", ""))

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Couldn't create a listing")
	assert.Contains(t, texts[1], "analyzing frames")
	assert.Contains(t, texts[1], "Too few frames")
}

func TestHandleVideo_TooLarge(t *testing.T) {
	tb := setup(t)
	update := videoUpdate("vid-1", "")
	update.Message.Video.FileSize = 50 * 1024 * 1024

	tb.bot.handleUpdateSync(context.Background(), update)

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "too large (50.0 MB)")
	tb.proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestHandleVideo_DocumentThatIsNotVideo(t *testing.T) {
	tb := setup(t)
	update := textUpdate("")
	update.Message.Document = &tgbotapi.Document{FileID: "doc-1", MimeType: "application/pdf"}

	tb.bot.handleUpdateSync(context.Background(), update)
	assert.Equal(t, []string{MsgNotAVideo}, tb.tg.sentTexts())
}

func TestHandleVideo_DownloadFailure(t *testing.T) {
	tb := setup(t)
	tb.tg.On("GetFileDirectURL", "vid-1").Return("", errors.New("file is too big"))

	tb.bot.handleUpdateSync(context.Background(), videoUpdate("vid-1", ""))

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Couldn't download the video")
	tb.proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestPlatformsCommand(t *testing.T) {
	tb := setup(t)
	ctx := context.Background()

	tb.bot.handleUpdateSync(ctx, textUpdate("/platforms"))
	tb.bot.handleUpdateSync(ctx, textUpdate("/platforms eBay etsy"))
	tb.bot.handleUpdateSync(ctx, textUpdate("/platforms"))
	tb.bot.handleUpdateSync(ctx, textUpdate("/platforms craigslist"))
	tb.bot.handleUpdateSync(ctx, textUpdate("/platforms reset"))

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 5)
	assert.Contains(t, texts[0], "default platforms: *ebay, etsy, poshmark, instagram, facebook*")
	assert.Equal(t, "✅ Default platforms set to: *ebay, etsy*", texts[1])
	assert.Contains(t, texts[2], "Your default platforms: *ebay, etsy*")
	assert.Contains(t, texts[3], "Unknown platform: craigslist")
	assert.Contains(t, texts[4], "reset")

	platforms, _ := tb.store.GetOwnerPlatforms("tg:1234")
	assert.Nil(t, platforms)
}

func TestPlatformsCommand_StoreError(t *testing.T) {
	tb := setup(t)
	tb.store.err = errors.New("db locked")

	tb.bot.handleUpdateSync(context.Background(), textUpdate("/platforms ebay"))
	assert.Equal(t, []string{MsgPlatformsError}, tb.tg.sentTexts())
}

func TestListingsCommand(t *testing.T) {
	tb := setup(t)
	ctx := context.Background()

	tb.bot.handleUpdateSync(ctx, textUpdate("/listings"))

	tb.store.listings = []listing.Listing{
		{OwnerID: "tg:1234", Title: "Desk_lamp", Price: 20, CreatedAt: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)},
		{OwnerID: "tg:9999", Title: "Not mine"},
	}
	tb.bot.handleUpdateSync(ctx, textUpdate("/listings"))

	texts := tb.tg.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, MsgNoListings, texts[0])
	assert.Contains(t, texts[1], "Desk\\_lamp ($20) - 2025-05-02")
	assert.NotContains(t, texts[1], "Not mine")
}

func TestRegisterCommands(t *testing.T) {
	tg := new(botApiMock)
	tg.On("Request", mock.MatchedBy(func(c tgbotapi.SetMyCommandsConfig) bool {
		names := make([]string, len(c.Commands))
		for i, cmd := range c.Commands {
			names[i] = cmd.Command
		}
		return assert.ObjectsAreEqual([]string{"start", "platforms", "listings"}, names)
	})).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

	RegisterCommands(tg)
	tg.AssertExpectations(t)
}

func TestHandleUpdate_HelpAlias(t *testing.T) {
	tb := setup(t)
	tb.bot.handleUpdateSync(context.Background(), textUpdate("/help@video_lister_bot"))
	assert.Equal(t, []string{formatReplyText(MsgStart)}, tb.tg.sentTexts())
}
