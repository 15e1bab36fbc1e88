package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
)

type RouterConfig struct {
	WS     *WSHandler
	API    *APIHandler
	Tokens app.TokenVerifier
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Realtime
	if cfg.WS != nil {
		r.GET("/ws/session/*pin", cfg.WS.ServeWS)
		r.GET("/wss/session/*pin", cfg.WS.ServeWS)
	}

	if cfg.API == nil {
		return r
	}

	api := r.Group("/api")
	{
		// Anonymous player endpoints
		api.POST("/participants/join", cfg.API.Join)
		api.POST("/answers", cfg.API.SubmitAnswer)
		api.GET("/sessions/:id/scores", cfg.API.Scores)
	}

	protected := api.Group("/")
	protected.Use(RequireUser(cfg.Tokens))
	{
		protected.GET("/quizzes", cfg.API.ListQuizzes)
		protected.POST("/quizzes", cfg.API.CreateQuiz)
		protected.GET("/quizzes/:id", cfg.API.GetQuiz)
		protected.PUT("/quizzes/:id", cfg.API.UpdateQuiz)
		protected.DELETE("/quizzes/:id", cfg.API.DeleteQuiz)
		protected.GET("/quizzes/:id/questions", cfg.API.ListQuestions)
		protected.POST("/quizzes/:id/questions", cfg.API.AddQuestion)
		protected.PUT("/questions/:id", cfg.API.ReplaceQuestion)
		protected.DELETE("/questions/:id", cfg.API.DeleteQuestion)
		protected.POST("/sessions", cfg.API.CreateSession)
		protected.GET("/sessions/:id", cfg.API.GetSession)
		protected.DELETE("/sessions/:id", cfg.API.DeleteSession)
		protected.POST("/sessions/:id/action/:action", cfg.API.SessionAction)
	}
	return r
}
