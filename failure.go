package authflow

import "context"

// translateFailure maps a gateway failure onto field errors.
//
// Validation failures copy the service's field map as is. Semantic failures
// land on a fixed key whatever field name the service used. Anything else
// returns ok=false and must be reported out of band.
func translateFailure(ctx context.Context, loc Localizer, err error) (fields FieldErrors, ok bool) {
	kind := FailureKindOf(err)
	switch kind {
	case FailureValidation:
		var src map[string]string
		if gwErr := asGatewayError(err); gwErr != nil {
			src = gwErr.Fields
		}
		if len(src) == 0 {
			return nil, false
		}
		fields = make(FieldErrors, len(src))
		for k, v := range src {
			fields[k] = v
		}
		return fields, true
	case FailureCodeInvalid:
		return FieldErrors{FieldCode: loc.Localize(ctx, MsgCodeInvalid)}, true
	case FailureCodeExpired:
		return FieldErrors{FieldCode: loc.Localize(ctx, MsgCodeExpired)}, true
	case FailureChallengeInvalid:
		return FieldErrors{FieldCaptcha: loc.Localize(ctx, MsgChallengeInvalid)}, true
	case FailureChallengeRequired:
		return FieldErrors{FieldCaptcha: loc.Localize(ctx, MsgChallengeRequired)}, true
	default:
		return nil, false
	}
}
