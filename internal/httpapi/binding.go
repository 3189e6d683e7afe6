package httpapi

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var tagNameOnce sync.Once

// useWireNames makes validation errors report json or form names instead of
// Go field names.
func useWireNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

// bind decodes the request into dst and turns binding failures into a
// validation error.
func bind(c *gin.Context, dst any) error {
	err := c.ShouldBind(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return identity.NewValidationError(map[string]identity.FieldMessage{
			"body": {Key: identity.MsgMalformedBody},
		})
	}

	fields := make(map[string]identity.FieldMessage, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = fieldMessage(fe)
	}
	return identity.NewValidationError(fields)
}

func fieldMessage(fe validator.FieldError) identity.FieldMessage {
	switch fe.Tag() {
	case "required":
		return identity.FieldMessage{Key: identity.MsgFieldRequired}
	case "email":
		return identity.FieldMessage{Key: identity.MsgFieldInvalidEmail}
	default:
		return identity.FieldMessage{Key: identity.MsgFieldInvalid}
	}
}
