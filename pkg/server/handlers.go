package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/waliduser3737-spec/api-photo-project/pkg/domain"
)

// LoginFailedMessage は既存のフロントエンドが表示するログイン失敗メッセージです。
const LoginFailedMessage = "اسم المستخدم أو كلمة المرور خاطئ"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// StatusFor は ErrorKind を HTTP ステータスに変換します。
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindProviderWarming:
		return http.StatusServiceUnavailable
	case domain.KindPollTimedOut:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleGenerate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)

	var in domain.GenerateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Kind: string(domain.KindInvalidInput)})
		return
	}
	if strings.TrimSpace(in.Provider) == "" {
		in.Provider = c.Query("provider")
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	res, err := s.generator.Generate(ctx, in)
	if err != nil {
		ge := domain.AsGenerationError(err)
		if ge.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ge.RetryAfter.Seconds()))))
		}
		c.JSON(StatusFor(ge.Kind), errorResponse{
			Error:     ge.Error(),
			Kind:      string(ge.Kind),
			Retryable: ge.Kind.Retryable(),
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleLogin(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 64<<10)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid JSON body"})
		return
	}

	ok := s.verifier.Verify(c.Request.Context(), req.Username, req.Password)
	if s.loginRecorder != nil {
		s.loginRecorder.ObserveLogin(ok)
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": LoginFailedMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
