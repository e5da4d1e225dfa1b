package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorBody(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return lobbyError(c, err) })

	resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, testErr)
	defer resp.Body.Close()

	body := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestLobbyErrorHidesInternalCause(t *testing.T) {
	status, body := errorBody(t, errors.New(`pq: relation "rounds" does not exist`))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, map[string]interface{}{"error": "internal error"}, body)
}

func TestLobbyErrorExposesRejection(t *testing.T) {
	status, body := errorBody(t, ErrReservedAccount)

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "ReservedAccount", body["code"])
	assert.Equal(t, "Lobby accounts cannot join", body["error"])
}
