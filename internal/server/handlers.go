package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/render"
)

type sessionParams struct {
	AppName   string `validate:"required,max=128"`
	UserID    string `validate:"required,max=128"`
	SessionID string `validate:"required,max=128"`
}

func (s *Server) sessionKey(c *fiber.Ctx) (model.SessionKey, error) {
	p := sessionParams{AppName: c.Params("app"), UserID: c.Params("user"), SessionID: c.Params("session")}
	if err := s.validate.Struct(p); err != nil {
		return model.SessionKey{}, err
	}
	return model.SessionKey{AppName: p.AppName, UserID: p.UserID, SessionID: p.SessionID}, nil
}

// createSession is idempotent: an existing session answers 200 as well.
func (s *Server) createSession(c *fiber.Ctx) error {
	key, err := s.sessionKey(c)
	if err != nil {
		return err
	}
	sess, created, err := s.agent.Sessions().Ensure(c.UserContext(), key)
	if err != nil {
		return err
	}
	resp := sessionResponse(sess)
	resp.Created = &created
	return c.JSON(resp)
}

func (s *Server) getSession(c *fiber.Ctx) error {
	key, err := s.sessionKey(c)
	if err != nil {
		return err
	}
	sess, turns, err := s.agent.Sessions().Load(c.UserContext(), key)
	if err != nil {
		return err
	}
	resp := sessionResponse(sess)
	resp.Turns = make([]TurnResponse, 0, len(turns))
	for _, t := range turns {
		resp.Turns = append(resp.Turns, TurnResponse{
			Question:     t.Question,
			Presentation: t.Presentation,
			View:         render.Render(t.Presentation),
			CreatedAt:    t.CreatedAt,
		})
	}
	return c.JSON(resp)
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	key, err := s.sessionKey(c)
	if err != nil {
		return err
	}
	if err := s.agent.Sessions().Delete(c.UserContext(), key); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// run answers one question, creating the session on first use.
func (s *Server) run(c *fiber.Ctx) error {
	var req RunRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	ctx, cancel := s.runContext(c)
	defer cancel()

	key := s.agent.Sessions().Key(req.AppName, req.UserID, req.SessionID)
	out, err := s.agent.Ask(ctx, key, req.NewMessage.Text())
	if err != nil {
		return err
	}

	wire, err := out.Presentation.Wire()
	if err != nil {
		return err
	}
	return c.JSON(RunResponse{
		Presentation: wire,
		View:         render.Render(wire),
		ResultKind:   out.Result.Kind().String(),
		Operations:   summarise(out.Operations),
	})
}

func (s *Server) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
