package internaldefs

import (
	"github.com/pharmalens/dashauth"
)

// Namespace prefixes every exported series.
const Namespace = "dashauth"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   dashauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   dashauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: dashauth.MetricLoginSuccess, Name: "dashauth_login_success_total", Help: "Logins that issued a session."},
	{ID: dashauth.MetricLoginFailure, Name: "dashauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: dashauth.MetricLoginRateLimited, Name: "dashauth_login_rate_limited_total", Help: "Logins denied by the attempt limiter."},
	{ID: dashauth.MetricRefreshSuccess, Name: "dashauth_refresh_success_total", Help: "Sessions slid forward."},
	{ID: dashauth.MetricRefreshFailure, Name: "dashauth_refresh_failure_total", Help: "Session refreshes that kept the old session."},
	{ID: dashauth.MetricSessionCreated, Name: "dashauth_session_created_total", Help: "Sessions issued."},
	{ID: dashauth.MetricSessionInvalid, Name: "dashauth_session_invalid_total", Help: "Lookups of absent or expired sessions."},
	{ID: dashauth.MetricSessionUserMissing, Name: "dashauth_session_user_missing_total", Help: "Live sessions whose user no longer exists."},
	{ID: dashauth.MetricLogout, Name: "dashauth_logout_total", Help: "Sessions destroyed by logout."},
	{ID: dashauth.MetricAccountCreationSuccess, Name: "dashauth_account_creation_success_total", Help: "Accounts registered."},
	{ID: dashauth.MetricAccountCreationDuplicate, Name: "dashauth_account_creation_duplicate_total", Help: "Registrations rejected for a taken email or username."},
	{ID: dashauth.MetricAccountCreationFailure, Name: "dashauth_account_creation_failure_total", Help: "Registrations rejected for other reasons."},
	{ID: dashauth.MetricProfileUpdate, Name: "dashauth_profile_update_total", Help: "Profile updates."},
	{ID: dashauth.MetricPasswordChangeSuccess, Name: "dashauth_password_change_success_total", Help: "Password changes."},
	{ID: dashauth.MetricPasswordChangeInvalidOld, Name: "dashauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: dashauth.MetricPasswordResetRequest, Name: "dashauth_password_reset_request_total", Help: "Password reset emails requested."},
	{ID: dashauth.MetricPasswordResetConfirmSuccess, Name: "dashauth_password_reset_confirm_success_total", Help: "Password resets completed."},
	{ID: dashauth.MetricPasswordResetConfirmFailure, Name: "dashauth_password_reset_confirm_failure_total", Help: "Password resets rejected."},
	{ID: dashauth.MetricEmailVerificationRequest, Name: "dashauth_email_verification_request_total", Help: "Verification emails requested."},
	{ID: dashauth.MetricEmailVerificationSuccess, Name: "dashauth_email_verification_success_total", Help: "Verification tokens consumed."},
	{ID: dashauth.MetricEmailVerificationFailure, Name: "dashauth_email_verification_failure_total", Help: "Verification tokens rejected."},
	{ID: dashauth.MetricMailFailure, Name: "dashauth_mail_failure_total", Help: "Outbound emails the sender rejected."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: dashauth.MetricValidateLatency, Name: "dashauth_validate_latency_seconds", Help: "Session validation latency."},
	{ID: dashauth.MetricHashLatency, Name: "dashauth_hash_latency_seconds", Help: "Password hash and verify latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "dashauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// ActiveSessionsName is the gauge of live sessions.
const ActiveSessionsName = "dashauth_active_sessions"

// ActiveSessionsHelp describes ActiveSessionsName.
const ActiveSessionsHelp = "Sessions currently stored."

// BucketCount matches the engine's histogram layout.
const BucketCount = 8

// HistogramBounds are the Prometheus le labels, in seconds.
var HistogramBounds = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the le labels made safe for instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets and ignoring extra ones.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals; the last
// element is the sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
