package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igpull/pkg/logger"
)

// TestClientLogging checks the log trail of the client against a real
// HTTP server
func TestClientLogging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok/":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/limited/":
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/error/":
			w.WriteHeader(http.StatusInternalServerError)
		case "/invalid/":
			_, _ = w.Write([]byte(`{invalid json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	log := logger.NewTestLogger()
	sleeper := &sleepRecorder{}
	client := New(Options{BaseURL: server.URL, Sleep: sleeper.sleep}, nil, nil, log)
	ctx := context.Background()

	t.Run("successful request", func(t *testing.T) {
		log.Clear()
		_, err := client.Get(ctx, server.URL+"/ok/", nil)
		require.NoError(t, err)

		assert.True(t, log.HasMessage("sending HTTP request"))
		assert.True(t, log.HasMessage("HTTP request completed"))
		for _, msg := range log.GetMessagesByLevel("DEBUG") {
			assert.Equal(t, "instagram", msg.Fields["component"])
		}
	})

	t.Run("rate limit", func(t *testing.T) {
		log.Clear()
		_, err := client.Get(ctx, server.URL+"/limited/", nil)
		require.Error(t, err)

		warns := log.GetMessagesByLevel("WARN")
		require.Len(t, warns, 2)
		assert.Equal(t, "rate limited, waiting", warns[0].Message)
		assert.Equal(t, http.StatusTooManyRequests, warns[0].Fields["status"])
		assert.True(t, log.HasMessage("rate limited, giving up"))
	})

	t.Run("server error", func(t *testing.T) {
		log.Clear()
		_, err := client.Get(ctx, server.URL+"/error/", nil)
		require.Error(t, err)
		assert.True(t, log.HasMessage("unexpected API error"))
	})

	t.Run("invalid JSON", func(t *testing.T) {
		log.Clear()
		var v map[string]interface{}
		err := client.GetJSON(ctx, server.URL+"/invalid/", nil, &v)
		require.Error(t, err)

		errorsLogged := log.GetMessagesByLevel("ERROR")
		require.Len(t, errorsLogged, 1)
		assert.Equal(t, "failed to parse JSON response", errorsLogged[0].Message)
		assert.Equal(t, "{invalid json", errorsLogged[0].Fields["body_preview"])
	})
}
