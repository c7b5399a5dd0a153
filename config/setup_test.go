package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withURL(t *testing.T, target *string, value string) {
	t.Helper()
	old := *target
	*target = value
	t.Cleanup(func() { *target = old })
}

func TestValidateTelegramToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/botgood/getMe" {
			w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer ts.Close()
	withURL(t, &telegramAPIURL, ts.URL)

	assert.NoError(t, validateTelegramToken("good"))
	assert.EqualError(t, validateTelegramToken("bad"), "Unauthorized")
}

func TestValidateGeminiKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("key") {
		case "good":
			w.Write([]byte(`{"models":[]}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
		}
	}))
	defer ts.Close()
	withURL(t, &geminiAPIURL, ts.URL)

	assert.NoError(t, validateGeminiKey("good"))
	assert.EqualError(t, validateGeminiKey("bad"), "API key not valid")
	assert.ErrorContains(t, validateGeminiKey("broken"), "HTTP 500")
}

func TestValidateOpenAIKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	withURL(t, &openAIAPIURL, ts.URL)

	assert.NoError(t, validateOpenAIKey("good"))
	assert.EqualError(t, validateOpenAIKey("bad"), "API key rejected (HTTP 401)")
}

func TestWriteEnvFile_MergesExisting(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	path, err := writeEnvFile(map[string]string{"BOT_TOKEN": "abc"})
	require.NoError(t, err)
	_, err = writeEnvFile(map[string]string{"GEMINI_API_KEY": "key with spaces"})
	require.NoError(t, err)

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", env["BOT_TOKEN"])
	assert.Equal(t, "key with spaces", env["GEMINI_API_KEY"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestGenerateMetadataKey(t *testing.T) {
	a, b := generateMetadataKey(), generateMetadataKey()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 44)
}
