package controller

import (
	"errors"
	"io"

	"agro-intake-be/internal/dto"
	"agro-intake-be/internal/pkg/serverutils"
	"agro-intake-be/internal/service"
	internalWS "agro-intake-be/internal/websocket"
	"agro-intake-be/pkg/questionnaire"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/websocket/v2"
)

const maxAudioBytes = 25 * 1024 * 1024

type IIntakeController interface {
	RegisterRoutes(r fiber.Router)
	RegisterWebSocket(app fiber.Router)
	Questionnaire(ctx *fiber.Ctx) error
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	UpdateAnswers(ctx *fiber.Ctx) error
	SetSectionStatus(ctx *fiber.Ctx) error
	Progress(ctx *fiber.Ctx) error
	Transcribe(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
}

type intakeController struct {
	service service.IIntakeService
	hub     *internalWS.Hub
}

func NewIntakeController(service service.IIntakeService, hub *internalWS.Hub) IIntakeController {
	return &intakeController{service: service, hub: hub}
}

func (c *intakeController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/intake/v1")
	h.Get("questionnaire", c.Questionnaire)
	h.Post("sessions", c.Create)
	h.Get("sessions/:id", c.Show)
	h.Delete("sessions/:id", c.Delete)
	h.Post("sessions/:id/messages", c.SendMessage)
	h.Put("sessions/:id/answers", c.UpdateAnswers)
	h.Put("sessions/:id/sections/:sectionId/status", c.SetSectionStatus)
	h.Get("sessions/:id/progress", c.Progress)
	h.Post("sessions/:id/transcribe", c.Transcribe)
}

func (c *intakeController) RegisterWebSocket(r fiber.Router) {
	r.Get("/ws/sessions/:id", c.Stream)
}

func (c *intakeController) Questionnaire(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get questionnaire", c.service.GetQuestionnaire(ctx.UserContext())))
}

func (c *intakeController) Create(ctx *fiber.Ctx) error {
	res, err := c.service.CreateSession(ctx.UserContext())
	if err != nil {
		return mapError(err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.BaseResponse[*dto.SessionResponse]{
		Success: true,
		Code:    fiber.StatusCreated,
		Message: "Success create session",
		Data:    res,
	})
}

func (c *intakeController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.GetSession(ctx.UserContext(), param(ctx, "id"))
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *intakeController) Delete(ctx *fiber.Ctx) error {
	if err := c.service.DeleteSession(ctx.UserContext(), param(ctx, "id")); err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *intakeController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), param(ctx, "id"), &req)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *intakeController) UpdateAnswers(ctx *fiber.Ctx) error {
	var req dto.UpdateAnswersRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdateAnswers(ctx.UserContext(), param(ctx, "id"), &req)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update answers", res))
}

func (c *intakeController) SetSectionStatus(ctx *fiber.Ctx) error {
	var req dto.SectionStatusRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SetSectionStatus(ctx.UserContext(), param(ctx, "id"), param(ctx, "sectionId"), &req)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update section status", res))
}

func (c *intakeController) Progress(ctx *fiber.Ctx) error {
	res, err := c.service.GetProgress(ctx.UserContext(), param(ctx, "id"))
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get progress", res))
}

// Transcribe expects multipart field "audio"; send=true handles the text as a message.
func (c *intakeController) Transcribe(ctx *fiber.Ctx) error {
	fh, err := ctx.FormFile("audio")
	if err != nil {
		return serverutils.NewHTTPError(fiber.StatusBadRequest, "Missing audio file", err)
	}
	if fh.Size > maxAudioBytes {
		return serverutils.NewHTTPError(fiber.StatusRequestEntityTooLarge, "Audio file too large", nil)
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	send := ctx.QueryBool("send", false) || ctx.FormValue("send") == "true"
	res, err := c.service.Transcribe(ctx.UserContext(), param(ctx, "id"), audio, fh.Filename, send)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success transcribe audio", res))
}

// Stream upgrades to a websocket that receives every event of the session.
func (c *intakeController) Stream(ctx *fiber.Ctx) error {
	if _, err := c.service.GetSession(ctx.UserContext(), param(ctx, "id")); err != nil {
		return mapError(err)
	}

	if websocket.IsWebSocketUpgrade(ctx) {
		return websocket.New(func(conn *websocket.Conn) {
			internalWS.ServeWs(c.hub, conn, conn.Params("id"))
		})(ctx)
	}
	return fiber.ErrUpgradeRequired
}

// param copies a route parameter; fiber reuses the underlying buffer once the handler returns.
func param(ctx *fiber.Ctx, key string) string {
	return utils.CopyString(ctx.Params(key))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return serverutils.NewHTTPError(fiber.StatusNotFound, "Session not found", err)
	case errors.Is(err, service.ErrUnknownQuestion), errors.Is(err, service.ErrInvalidAnswer):
		return serverutils.NewHTTPError(fiber.StatusBadRequest, err.Error(), err)
	case errors.Is(err, questionnaire.ErrUnknownSection):
		return serverutils.NewHTTPError(fiber.StatusNotFound, err.Error(), err)
	case errors.Is(err, questionnaire.ErrGeneralSectionLocked):
		return serverutils.NewHTTPError(fiber.StatusConflict, err.Error(), err)
	case errors.Is(err, questionnaire.ErrInvalidStatus):
		return serverutils.NewHTTPError(fiber.StatusBadRequest, err.Error(), err)
	default:
		return err
	}
}
