package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/authflow"
)

// CounterDef names one authflow counter.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one authflow histogram.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricRegisterSuccess, Name: "authflow_register_success_total", Help: "Accounts registered through a registration flow."},
	{ID: authflow.MetricRegisterFailure, Name: "authflow_register_failure_total", Help: "Registration submissions rejected by the gateway."},
	{ID: authflow.MetricRegisterFastPath, Name: "authflow_register_fast_path_total", Help: "Registrations that finished without email verification."},
	{ID: authflow.MetricVerifySuccess, Name: "authflow_verify_success_total", Help: "Verification codes accepted."},
	{ID: authflow.MetricVerifyFailure, Name: "authflow_verify_failure_total", Help: "Verification codes rejected."},
	{ID: authflow.MetricCodeSendSuccess, Name: "authflow_code_send_success_total", Help: "Verification codes sent."},
	{ID: authflow.MetricCodeSendFailure, Name: "authflow_code_send_failure_total", Help: "Verification code sends that failed."},
	{ID: authflow.MetricResendThrottled, Name: "authflow_resend_throttled_total", Help: "Resends refused while the cooldown was running."},
	{ID: authflow.MetricRecoveryIdentifySuccess, Name: "authflow_recovery_identify_success_total", Help: "Recovery identify steps that sent a code."},
	{ID: authflow.MetricRecoveryIdentifyFailure, Name: "authflow_recovery_identify_failure_total", Help: "Recovery identify steps that failed."},
	{ID: authflow.MetricPasswordResetSuccess, Name: "authflow_password_reset_success_total", Help: "Passwords reset."},
	{ID: authflow.MetricPasswordResetFailure, Name: "authflow_password_reset_failure_total", Help: "Password reset submissions rejected."},
	{ID: authflow.MetricLoginSuccess, Name: "authflow_login_success_total", Help: "Successful logins."},
	{ID: authflow.MetricLoginFailure, Name: "authflow_login_failure_total", Help: "Failed logins."},
	{ID: authflow.MetricChallengeRequired, Name: "authflow_challenge_required_total", Help: "Logins that were asked to solve a challenge."},
	{ID: authflow.MetricChallengeFetched, Name: "authflow_challenge_fetched_total", Help: "Challenges fetched from the gateway."},
	{ID: authflow.MetricLocalValidationRejected, Name: "authflow_local_validation_rejected_total", Help: "Submissions rejected before any gateway call."},
	{ID: authflow.MetricStepBack, Name: "authflow_step_back_total", Help: "Back navigations."},
	{ID: authflow.MetricStaleResponseDropped, Name: "authflow_stale_response_dropped_total", Help: "Gateway responses dropped because the user left the step."},
	{ID: authflow.MetricUnmappedFailure, Name: "authflow_unmapped_failure_total", Help: "Gateway failures with no known kind."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricGatewayLatency, Name: "authflow_gateway_latency_seconds", Help: "Wall time of one gateway call."},
}

// HistogramBounds spells authflow.LatencyBounds in seconds, followed by
// "+Inf".
var HistogramBounds = func() []string {
	out := make([]string, 0, len(authflow.LatencyBounds)+1)
	for _, d := range authflow.LatencyBounds {
		out = append(out, strconv.FormatFloat(d.Seconds(), 'g', -1, 64))
	}
	return append(out, "+Inf")
}()

// HistogramBoundSuffix spells HistogramBounds for use inside instrument
// names: "0.05" becomes "0_05" and "+Inf" becomes "inf".
var HistogramBoundSuffix = func() []string {
	out := make([]string, len(HistogramBounds))
	for i, b := range HistogramBounds {
		if b == "+Inf" {
			out[i] = "inf"
			continue
		}
		out[i] = strings.ReplaceAll(b, ".", "_")
	}
	return out
}()

// CumulativeBuckets turns per-bucket counts into running totals, one per
// entry of HistogramBounds. Missing buckets count as zero and extra ones
// are ignored.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, len(HistogramBounds))
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
