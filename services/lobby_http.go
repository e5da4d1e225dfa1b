// services/lobby_http.go
package services

import (
	"log"
	"strconv"

	"github.com/asaskevich/govalidator"
	"github.com/gofiber/fiber/v2"
)

type joinRequest struct {
	Amount int64 `json:"amount" valid:"required"`
}

func currentPlayer(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func roundIDParam(c *fiber.Ctx) (uint64, bool) {
	raw := c.Params("id")
	if !govalidator.IsInt(raw) {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// lobbyError writes a rejected operation the same way for every route.
func lobbyError(c *fiber.Ctx, err error) error {
	if le, ok := AsLobbyError(err); ok {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{
			"error": le.Message,
			"code":  le.Code,
			"kind":  le.Kind,
		})
	}
	log.Printf("[LOBBY] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
	})
}

// JoinLobby handles POST /lobby/join
func (s *LobbyService) JoinLobby(c *fiber.Ctx) error {
	player := currentPlayer(c)
	if player == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
	}
	var req joinRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if _, err := govalidator.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount is required", "details": err.Error()})
	}
	round, err := s.Join(c.UserContext(), player, req.Amount)
	if err != nil {
		return lobbyError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "joined",
		"round_id": round,
		"player":   player,
		"amount":   req.Amount,
	})
}

// UnjoinLobby handles POST /lobby/unjoin
func (s *LobbyService) UnjoinLobby(c *fiber.Ctx) error {
	player := currentPlayer(c)
	if player == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
	}
	if err := s.Unjoin(c.UserContext(), player); err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"message": "unjoined and refunded"})
}

// PlayRound handles POST /lobby/play
func (s *LobbyService) PlayRound(c *fiber.Ctx) error {
	player := currentPlayer(c)
	if player == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
	}
	if err := s.Play(c.UserContext(), player); err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"message": "play accepted"})
}

// CancelCurrentRound handles POST /lobby/rounds/current/cancel
func (s *LobbyService) CancelCurrentRound(c *fiber.Ctx) error {
	if err := s.CancelRound(c.UserContext()); err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"message": "round cancelled"})
}

// FinishCurrentRound handles POST /lobby/rounds/current/finish
func (s *LobbyService) FinishCurrentRound(c *fiber.Ctx) error {
	if err := s.FinishRound(c.UserContext()); err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"message": "round finished"})
}

// OpenNextRound handles POST /lobby/rounds/next
func (s *LobbyService) OpenNextRound(c *fiber.Ctx) error {
	round, err := s.StartNextRound(c.UserContext())
	if err != nil {
		return lobbyError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "round started",
		"round_id":   round.ID,
		"start_time": round.StartTime,
	})
}

// ClaimRoundRefund handles POST /lobby/rounds/:id/refund
func (s *LobbyService) ClaimRoundRefund(c *fiber.Ctx) error {
	player := currentPlayer(c)
	if player == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
	}
	id, ok := roundIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid round id"})
	}
	if err := s.ClaimRefund(c.UserContext(), player, id); err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"message": "refund processed", "round_id": id})
}

// GetCurrentRound handles GET /lobby/rounds/current
func (s *LobbyService) GetCurrentRound(c *fiber.Ctx) error {
	id, err := s.CurrentRoundNo(c.UserContext())
	if err != nil {
		return lobbyError(c, err)
	}
	summary, err := s.Summary(c.UserContext(), id)
	if err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(summary)
}

// GetRound handles GET /lobby/rounds/:id
func (s *LobbyService) GetRound(c *fiber.Ctx) error {
	id, ok := roundIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid round id"})
	}
	summary, err := s.Summary(c.UserContext(), id)
	if err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(summary)
}

// GetRoundStatus handles GET /lobby/rounds/:id/status
func (s *LobbyService) GetRoundStatus(c *fiber.Ctx) error {
	id, ok := roundIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid round id"})
	}
	status, err := s.RoundStatus(c.UserContext(), id)
	if err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"round_id": id, "status": status.String(), "code": int(status)})
}

// GetRoundPlayerCount handles GET /lobby/rounds/:id/players/count
func (s *LobbyService) GetRoundPlayerCount(c *fiber.Ctx) error {
	id, ok := roundIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid round id"})
	}
	count, err := s.PlayerCount(c.UserContext(), id)
	if err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"round_id": id, "player_count": count})
}

// GetHeldBalance handles GET /lobby/balance
func (s *LobbyService) GetHeldBalance(c *fiber.Ctx) error {
	held, err := s.HeldBalance(c.UserContext())
	if err != nil {
		return lobbyError(c, err)
	}
	return c.JSON(fiber.Map{"address": s.Config.EscrowAccount, "balance": held})
}
