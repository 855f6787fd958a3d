package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"rocket/internal/game"
	"rocket/internal/ledger"
)

func (s *FiberServer) RegisterFiberRoutes() {
	app := s.App

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	app.Get("/health", s.healthHandler)

	api := app.Group("/api/v1")

	gameGroup := api.Group("/game")
	gameGroup.Get("/state", s.gameStateHandler)
	gameGroup.Get("/history", s.gameHistoryHandler)
	gameGroup.Post("/bet", s.placeBetHandler)
	gameGroup.Post("/cashout", s.cashOutHandler)
	gameGroup.Post("/client-seed", s.clientSeedHandler)
	gameGroup.Get("/verify/:roundId", s.verifyRoundHandler)

	userGroup := api.Group("/user")
	userGroup.Get("/:userId/balance", s.getBalanceHandler)
	userGroup.Post("/:userId/balance", s.setBalanceHandler)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.websocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"players_online": s.hub.GetClientCount(),
		},
	})
}

func (s *FiberServer) gameStateHandler(c *fiber.Ctx) error {
	snap, ok := s.engine.Snapshot()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no round in progress yet",
		})
	}
	return c.JSON(fiber.Map{
		"round":          snap,
		"crash_history":  s.engine.History(),
		"players_online": s.hub.GetClientCount(),
	})
}

func (s *FiberServer) gameHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rounds, err := s.ledger.RecentRounds(c.Context(), limit)
	if err != nil {
		log.Printf("[SERVER] History lookup failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "history unavailable",
		})
	}

	out := make([]fiber.Map, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, fiber.Map{
			"round_id":         r.ID,
			"nonce":            r.Nonce,
			"server_seed_hash": r.ServerSeedHash,
			"client_seed":      r.ClientSeed,
			"server_seed":      r.ServerSeed,
			"crash_point":      r.CrashPoint,
			"crashed_at":       r.CrashedAt,
		})
	}
	return c.JSON(fiber.Map{"rounds": out})
}

type placeBetRequest struct {
	UserID      string  `json:"user_id"`
	Amount      int64   `json:"amount"`
	AutoCashout float64 `json:"auto_cashout"`
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req placeBetRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and amount are required",
		})
	}

	snap, balance, err := s.engine.PlaceBet(c.Context(), req.UserID, req.Amount, req.AutoCashout)
	if err != nil {
		return s.gameError(c, err)
	}

	return c.JSON(fiber.Map{
		"bet":     snap,
		"balance": balance,
	})
}

type cashOutRequest struct {
	UserID string `json:"user_id"`
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	var req cashOutRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	snap, balance, err := s.engine.CashOut(c.Context(), req.UserID)
	if err != nil {
		return s.gameError(c, err)
	}

	return c.JSON(fiber.Map{
		"bet":     snap,
		"balance": balance,
	})
}

type clientSeedRequest struct {
	Seed string `json:"seed"`
}

// clientSeedHandler queues a player-supplied seed for the next round. The
// running round keeps the seed its commitment was published with.
func (s *FiberServer) clientSeedHandler(c *fiber.Ctx) error {
	var req clientSeedRequest
	if err := c.BodyParser(&req); err != nil || req.Seed == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seed is required",
		})
	}
	if len(req.Seed) > 64 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seed too long, 64 characters max",
		})
	}

	s.engine.SetNextClientSeed(req.Seed)
	return c.JSON(fiber.Map{"message": "client seed set for next round"})
}

// verifyRoundHandler recomputes a finished round's crash point from its
// revealed seed so anyone can audit the outcome.
func (s *FiberServer) verifyRoundHandler(c *fiber.Ctx) error {
	roundID := c.Params("roundId")

	rec, err := s.ledger.GetRound(c.Context(), roundID)
	if err != nil {
		if err == ledger.ErrRoundNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "round not found",
			})
		}
		log.Printf("[SERVER] Round lookup failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "round lookup failed",
		})
	}

	if !rec.Revealed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":            "round not finished, seed not revealed yet",
			"server_seed_hash": rec.ServerSeedHash,
		})
	}

	valid := game.VerifyCrashPoint(
		rec.ServerSeed, rec.ClientSeed, rec.Nonce,
		s.cfg.HouseEdge, s.cfg.MaxMultiplier, rec.CrashPoint,
	)
	commitmentOK := game.HashCommitment(rec.ServerSeed) == rec.ServerSeedHash

	return c.JSON(fiber.Map{
		"round_id":         rec.ID,
		"nonce":            rec.Nonce,
		"server_seed":      rec.ServerSeed,
		"server_seed_hash": rec.ServerSeedHash,
		"client_seed":      rec.ClientSeed,
		"crash_point":      rec.CrashPoint,
		"crash_point_ok":   valid,
		"commitment_ok":    commitmentOK,
	})
}

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	balance, err := s.wallet.GetBalance(c.Context(), userID)
	if err != nil {
		log.Printf("[SERVER] Balance read failed for %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "balance unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

type setBalanceRequest struct {
	Balance int64 `json:"balance"`
}

func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var req setBalanceRequest
	if err := c.BodyParser(&req); err != nil || req.Balance < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "balance must be a non-negative integer",
		})
	}

	if err := s.wallet.SetBalance(c.Context(), userID, req.Balance); err != nil {
		log.Printf("[SERVER] Balance write failed for %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "balance write failed",
		})
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": req.Balance,
	})
}

// gameError maps engine sentinels to a 400 with the player-facing reason;
// anything else is a store problem the client should retry.
func (s *FiberServer) gameError(c *fiber.Ctx, err error) error {
	if game.IsRejection(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": game.RejectionReason(err),
		})
	}
	log.Printf("[SERVER] Game operation failed: %v", err)
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "temporary failure, try again",
	})
}

// Client commands over the socket. Anything the engine rejects comes back
// as a rejected envelope instead of closing the connection.
type wsCommand struct {
	Action      string  `json:"action"`
	Amount      int64   `json:"amount,omitempty"`
	AutoCashout float64 `json:"auto_cashout,omitempty"`
}

func (s *FiberServer) websocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id")
	if userID == "" {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","data":{"reason":"user_id query parameter required"}}`))
		conn.Close()
		return
	}

	client := s.hub.RegisterClient(conn, userID)
	defer s.hub.UnregisterClient(client)

	// Fresh connections get the current round and their own standing
	// immediately instead of waiting for the next tick.
	if snap, ok := s.engine.Snapshot(); ok {
		s.hub.SendToUser(userID, game.Envelope{Type: "gameState", Data: game.GameStateMessage{
			RoundID:        snap.RoundID,
			State:          snap.Status,
			Multiplier:     snap.Multiplier,
			Countdown:      snap.Countdown,
			PlayersOnline:  s.hub.GetClientCount(),
			CrashHistory:   s.engine.History(),
			ServerSeedHash: snap.ServerSeedHash,
			ServerSeed:     snap.ServerSeed,
			CrashPoint:     snap.CrashPoint,
		}})
	}
	s.engine.Overlay(userID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.rejectWS(userID, "unknown", "malformed command")
			continue
		}

		switch cmd.Action {
		case "bet":
			if _, _, err := s.engine.PlaceBet(context.Background(), userID, cmd.Amount, cmd.AutoCashout); err != nil {
				s.rejectWS(userID, "bet", reasonFor(err))
			}
		case "cashOut":
			if _, _, err := s.engine.CashOut(context.Background(), userID); err != nil {
				s.rejectWS(userID, "cashOut", reasonFor(err))
			}
		case "ping":
			s.hub.SendToUser(userID, game.Envelope{Type: "pong"})
		default:
			s.rejectWS(userID, cmd.Action, "unknown action")
		}
	}
}

func (s *FiberServer) rejectWS(userID, action, reason string) {
	s.hub.SendToUser(userID, game.Envelope{Type: "rejected", Data: game.RejectedMessage{
		Action: action,
		Reason: reason,
	}})
}

func reasonFor(err error) string {
	if game.IsRejection(err) {
		return game.RejectionReason(err)
	}
	return "temporary failure, try again"
}
