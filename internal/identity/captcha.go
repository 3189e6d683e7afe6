package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/stores"
)

// Captcha is an issued captcha question.
type Captcha struct {
	ID       string `json:"captcha_id"`
	Question string `json:"question"`
}

// mathQuestion returns a small arithmetic question and its answer.
func mathQuestion() (string, string, error) {
	op, err := internal.RandomInt(0, 2)
	if err != nil {
		return "", "", err
	}

	var a, b, answer int
	var sign string
	switch op {
	case 0:
		if a, err = internal.RandomInt(1, 50); err != nil {
			return "", "", err
		}
		if b, err = internal.RandomInt(1, 50); err != nil {
			return "", "", err
		}
		answer, sign = a+b, "+"
	case 1:
		if a, err = internal.RandomInt(10, 99); err != nil {
			return "", "", err
		}
		// b <= a keeps the answer non-negative.
		if b, err = internal.RandomInt(1, a); err != nil {
			return "", "", err
		}
		answer, sign = a-b, "-"
	default:
		if a, err = internal.RandomInt(1, 9); err != nil {
			return "", "", err
		}
		if b, err = internal.RandomInt(1, 9); err != nil {
			return "", "", err
		}
		answer, sign = a*b, "×"
	}

	return fmt.Sprintf("%d %s %d = ?", a, sign, b), strconv.Itoa(answer), nil
}

// NewCaptcha issues a captcha valid for Settings.CaptchaTTL.
func (s *Service) NewCaptcha(ctx context.Context) (*Captcha, error) {
	id, err := internal.NewCaptchaID()
	if err != nil {
		return nil, unavailable(err)
	}
	question, answer, err := mathQuestion()
	if err != nil {
		return nil, unavailable(err)
	}
	if err := s.captchas.Save(ctx, id, answer, s.settings.CaptchaTTL); err != nil {
		return nil, unavailable(err)
	}
	return &Captcha{ID: id, Question: question}, nil
}

// checkCaptcha consumes the captcha id and compares the trimmed answer.
func (s *Service) checkCaptcha(ctx context.Context, id, answer string) error {
	if id == "" || strings.TrimSpace(answer) == "" {
		return newError(CodeCaptchaInvalid, MsgCaptchaInvalid)
	}
	stored, err := s.captchas.Take(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrCaptchaNotFound) {
			return newError(CodeCaptchaInvalid, MsgCaptchaInvalid)
		}
		return unavailable(err)
	}
	if strings.TrimSpace(answer) != strings.TrimSpace(stored) {
		return newError(CodeCaptchaInvalid, MsgCaptchaInvalid)
	}
	return nil
}
