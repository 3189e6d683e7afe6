package httpapi

import (
	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/MrEthical07/authflow/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username      string `form:"username" json:"username" binding:"required"`
	Password      string `form:"password" json:"password" binding:"required"`
	CaptchaID     string `form:"captcha_id" json:"captcha_id"`
	CaptchaAnswer string `form:"captcha_answer" json:"captcha_answer"`
}

type sendCodeRequest struct {
	Email   string `json:"email" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

type verifyCodeRequest struct {
	Email   string `json:"email" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type handler struct {
	svc    *identity.Service
	logger *zap.Logger
}

func (h *handler) fail(c *gin.Context, err error) {
	respondError(c, h.logger, err)
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	user, err := h.svc.Register(c.Request.Context(), identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := identity.MsgRegistrationSuccess
	if user.IsSuperuser {
		msg = identity.MsgRegistrationFirstUser
	}
	respondOK(c, msg, user)
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	token, err := h.svc.Login(c.Request.Context(), identity.LoginInput{
		Username:      req.Username,
		Password:      req.Password,
		CaptchaID:     req.CaptchaID,
		CaptchaAnswer: req.CaptchaAnswer,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, identity.MsgLoginSuccess, token)
}

func (h *handler) sendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	err := h.svc.SendCode(c.Request.Context(), identity.SendCodeInput{Email: req.Email, Purpose: req.Purpose})
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := identity.MsgVerificationEmailSent
	if req.Purpose == identity.PurposeResetPassword {
		msg = identity.MsgResetEmailSent
	}
	respondOK(c, msg, nil)
}

func (h *handler) verifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.svc.VerifyCode(c.Request.Context(), req.Email, req.Code, req.Purpose); err != nil {
		h.fail(c, err)
		return
	}
	msg := identity.MsgSuccess
	if req.Purpose == identity.PurposeRegister {
		msg = identity.MsgEmailVerified
	}
	respondOK(c, msg, nil)
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, identity.MsgPasswordResetSuccess, nil)
}

func (h *handler) captcha(c *gin.Context) {
	cp, err := h.svc.NewCaptcha(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, identity.MsgCaptchaQuestionCreated, cp)
}

func (h *handler) me(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		h.fail(c, identity.NewAuthError(identity.CodeUnauthorized))
		return
	}
	user, err := h.svc.Me(c.Request.Context(), claims.UID)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, identity.MsgSuccess, user)
}
