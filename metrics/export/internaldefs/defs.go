package internaldefs

import "github.com/innerscope/authcore"

// Namespace prefixes every exported metric name.
const Namespace = "authcore"

// CounterDef names one authcore counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one authcore histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

func counter(id authcore.MetricID, name, help string) CounterDef {
	return CounterDef{ID: id, Name: Namespace + "_" + name + "_total", Help: help}
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	counter(authcore.MetricRegisterSuccess, "register_success", "Accounts registered."),
	counter(authcore.MetricRegisterConflict, "register_conflict", "Registrations rejected because the email was taken."),
	counter(authcore.MetricLoginSuccess, "login_success", "Successful logins."),
	counter(authcore.MetricLoginFailure, "login_failure", "Failed logins, whatever the cause."),
	counter(authcore.MetricLoginLocked, "login_locked", "Login attempts against a locked account."),
	counter(authcore.MetricLockoutStarted, "lockout_started", "Lockout episodes started."),
	counter(authcore.MetricRefreshSuccess, "refresh_success", "Refresh credentials rotated."),
	counter(authcore.MetricRefreshFailure, "refresh_failure", "Refresh attempts rejected."),
	counter(authcore.MetricRefreshReuseDetected, "refresh_reuse_detected", "Rotated refresh credentials presented again with family revocation."),
	counter(authcore.MetricLogout, "logout", "Single sessions ended."),
	counter(authcore.MetricLogoutAll, "logout_all", "Logout-all operations."),
	counter(authcore.MetricPasswordResetRequest, "password_reset_request", "Password reset requests."),
	counter(authcore.MetricPasswordResetConfirmSuccess, "password_reset_confirm_success", "Password resets completed."),
	counter(authcore.MetricPasswordResetConfirmFailure, "password_reset_confirm_failure", "Password reset confirmations rejected."),
	counter(authcore.MetricEmailVerificationRequest, "email_verification_request", "Verification emails re-sent."),
	counter(authcore.MetricEmailVerificationSuccess, "email_verification_success", "Emails verified."),
	counter(authcore.MetricEmailVerificationFailure, "email_verification_failure", "Verification attempts rejected."),
	counter(authcore.MetricPasswordChangeSuccess, "password_change_success", "Passwords changed."),
	counter(authcore.MetricPasswordChangeInvalidOld, "password_change_invalid_old", "Password changes with a wrong current password."),
	counter(authcore.MetricPasswordRehashed, "password_rehashed", "Digests upgraded to current parameters at login."),
	counter(authcore.MetricProfileUpdated, "profile_updated", "Profile updates."),
	counter(authcore.MetricAccountDeleted, "account_deleted", "Accounts deleted."),
	counter(authcore.MetricRateLimitHit, "rate_limit_hit", "Requests denied by a throttle."),
	counter(authcore.MetricSessionCreated, "session_created", "Sessions opened by register or login."),
	counter(authcore.MetricSessionInvalidated, "session_invalidated", "Sessions ended by logout."),
	counter(authcore.MetricMailFailure, "mail_failure", "Emails that could not be delivered."),
	counter(authcore.MetricMailDropped, "mail_dropped", "Emails discarded because the send queue was full."),
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: Namespace + "_login_latency_seconds", Help: "Login latency."},
}

// BucketCount is the number of latency buckets, +Inf included.
const BucketCount = 8

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = [BucketCount]string{"0.05", "0.1", "0.15", "0.2", "0.3", "0.5", "1", "+Inf"}

// HistogramBoundSuffix spells HistogramBounds for use inside instrument names.
var HistogramBoundSuffix = [BucketCount]string{"0_05", "0_1", "0_15", "0_2", "0_3", "0_5", "1", "inf"}

// Cumulative pads or truncates raw per-bucket counts to BucketCount and
// returns running totals, as Prometheus and OTel expect.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
