// handlers/lobby.go
package handlers

import (
	"lobby-ledger/middleware"
	"lobby-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLobbyRoutes(app *fiber.App, lobbyService *services.LobbyService) {
	lobby := app.Group("/lobby")

	// Read-only views, no player identity needed
	lobby.Get("/rounds/current", lobbyService.GetCurrentRound)
	lobby.Get("/rounds/:id", lobbyService.GetRound)
	lobby.Get("/rounds/:id/status", lobbyService.GetRoundStatus)
	lobby.Get("/rounds/:id/players/count", lobbyService.GetRoundPlayerCount)
	lobby.Get("/balance", lobbyService.GetHeldBalance)
	lobby.Get("/events/stream", lobbyService.StreamLobbyEventsSSE)

	// Mutations act on behalf of the gateway-authenticated player
	secured := lobby.Group("/", middleware.UserContextMiddleware())

	secured.Post("/join", lobbyService.JoinLobby)
	secured.Post("/unjoin", lobbyService.UnjoinLobby)
	secured.Post("/play", lobbyService.PlayRound)
	secured.Post("/rounds/current/cancel", lobbyService.CancelCurrentRound)
	secured.Post("/rounds/current/finish", lobbyService.FinishCurrentRound)
	secured.Post("/rounds/next", lobbyService.OpenNextRound)
	secured.Post("/rounds/:id/refund", lobbyService.ClaimRoundRefund)
}
