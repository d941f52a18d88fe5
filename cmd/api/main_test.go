package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-platform/item-detail-service/internal/application"
	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/internal/infrastructure/memory"
	"github.com/inventory-platform/item-detail-service/internal/security"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
)

// failingCipher rejects every operation, forcing the export pipeline to fail
// before anything reaches the response body.
type failingCipher struct{}

func (failingCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return nil, errors.New("key unavailable")
}

func (failingCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return nil, errors.New("key unavailable")
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

func testSessions(t *testing.T, store domain.ItemStore, cipher security.Cipher) *application.SessionManager {
	t.Helper()
	sessions := application.NewSessionManager(func(itemID int64) (*application.DetailService, error) {
		return application.NewDetailService(application.Config{
			ItemID:     itemID,
			Store:      store,
			Cipher:     cipher,
			ScratchDir: t.TempDir(),
			Logger:     testLogger(),
		})
	})
	t.Cleanup(sessions.CloseAll)
	return sessions
}

func TestGetStateHandlerServesStoredItem(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.New()
	store.Seed(domain.Item{ID: 42, Name: "Wrench", Price: 19.99, Quantity: 1})
	sessions := testSessions(t, store, failingCipher{})

	router := gin.New()
	router.GET("/api/v1/items/:id", getStateHandler(sessions, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/items/42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Wrench"`)
	assert.Contains(t, rec.Body.String(), `"quantity":"1"`)
	assert.Contains(t, rec.Body.String(), `"outOfStock":false`)
}

func TestExportHandlerFailureRespondsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.New()
	store.Seed(domain.Item{ID: 42, Name: "Wrench", Quantity: 1})
	sessions := testSessions(t, store, failingCipher{})

	router := gin.New()
	router.POST("/api/v1/items/:id/export", exportHandler(sessions, testLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/items/42/export", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestLoadConfigGatesKafkaOnBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	config := loadConfig()
	assert.Empty(t, config.Kafka.Brokers)

	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	config = loadConfig()
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, config.Kafka.Brokers)
}
