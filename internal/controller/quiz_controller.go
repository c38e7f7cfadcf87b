package controller

import (
	"errors"
	"net/http"
	"strings"

	"quizo/internal/quiz"
	"quizo/internal/repository"
	"quizo/internal/service"
	"quizo/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// ChoiceRequest 按选项文本或 A-D 标签作答，二者至少填一个
type ChoiceRequest struct {
	Option string `json:"option"`
	Label  string `json:"label"`
}

type NumericRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// @Summary 当前题目
// @Tags 答题
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/quiz [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	util.Success(ctx, c.QuizService.View())
}

// @Summary 选择题作答
// @Tags 答题
// @Accept json
// @Produce json
// @Param body body ChoiceRequest true "选项"
// @Success 200 {object} util.Response
// @Router /api/quiz/choice [post]
func (c *QuizController) SelectChoice(ctx *gin.Context) {
	var req ChoiceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	var (
		view service.QuizView
		err  error
	)
	switch {
	case req.Option != "":
		view, err = c.QuizService.SelectChoice(req.Option)
	case strings.TrimSpace(req.Label) != "":
		view, err = c.QuizService.SelectLabel(req.Label)
	default:
		util.BadRequest(ctx, "option or label is required")
		return
	}
	if err != nil {
		answerError(ctx, err, view)
		return
	}
	util.Success(ctx, view)
}

// @Summary 数值题作答
// @Tags 答题
// @Accept json
// @Produce json
// @Param body body NumericRequest true "答案"
// @Success 200 {object} util.Response
// @Router /api/quiz/numeric [post]
func (c *QuizController) SubmitNumeric(ctx *gin.Context) {
	var req NumericRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		util.BadRequest(ctx, util.ErrEmptyAnswer.Error())
		return
	}

	view, err := c.QuizService.SubmitNumeric(req.Answer)
	if err != nil {
		answerError(ctx, err, view)
		return
	}
	util.Success(ctx, view)
}

// @Summary 下一题
// @Tags 答题
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/quiz/next [post]
func (c *QuizController) Next(ctx *gin.Context) {
	res, err := c.QuizService.Advance()
	if err != nil {
		answerError(ctx, err, res.View)
		return
	}
	util.Success(ctx, res)
}

// @Summary 确认完成
// @Tags 答题
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/quiz/acknowledge [post]
func (c *QuizController) Acknowledge(ctx *gin.Context) {
	util.Success(ctx, c.QuizService.Acknowledge())
}

// @Summary 作答历史
// @Tags 答题
// @Produce json
// @Param limit query int false "条数，默认 20，最多 200"
// @Success 200 {object} util.Response
// @Router /api/attempts [get]
func (c *QuizController) History(ctx *gin.Context) {
	limit, err := util.ParseLimit(ctx.Query("limit"), repository.DefaultRecentLimit)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempts, err := c.QuizService.History(ctx.Request.Context(), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

func answerError(ctx *gin.Context, err error, view service.QuizView) {
	switch {
	case errors.Is(err, service.ErrAwaitingAcknowledgement):
		util.ErrorWithData(ctx, http.StatusConflict, err.Error(), view)
	case errors.Is(err, quiz.ErrWrongKind), errors.Is(err, quiz.ErrUnknownOption):
		util.ErrorWithData(ctx, http.StatusBadRequest, err.Error(), view)
	default:
		util.LogInternalError(ctx, err)
	}
}
