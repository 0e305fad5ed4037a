package constants

// AppendLockID scopes the advisory lock serializing "read latest hash,
// compute, insert" across concurrent appenders.
const AppendLockID int64 = 424242

const (
	StmtInsertEvent     = "insert_event"
	StmtReadLatestEvent = "read_latest_event"
	StmtRecentEvents    = "recent_events"
	StmtAllEvents       = "all_events"
	StmtCountsByKid     = "counts_by_kid"
	StmtUpdatePayload   = "update_payload"

	StmtScanByKidFirst = "scan_by_kid_first"
	StmtScanByKidAfter = "scan_by_kid_after"

	StmtKeyringStateGet     = "keyring_state_get"
	StmtKeyringStateInsert  = "keyring_state_insert"
	StmtKeyringStateAlign   = "keyring_state_align"
	StmtKeyringStatePromote = "keyring_state_promote"

	StmtPolicyList          = "policy_list"
	StmtPolicyEnsurePresent = "policy_ensure_present"
	StmtPolicyMarkActive    = "policy_mark_active"
	StmtPolicyDeprecate     = "policy_deprecate"

	StmtJobInsert     = "job_insert"
	StmtJobGet        = "job_get"
	StmtJobCancel     = "job_cancel"
	StmtJobClaim      = "job_claim"
	StmtJobProgress   = "job_progress"
	StmtJobMarkDone   = "job_mark_done"
	StmtJobMarkFailed = "job_mark_failed"
)

var Queries = map[string]string{
	StmtInsertEvent: `
		INSERT INTO audit_events (id, created_at, event_type, actor, correlation_id, payload, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,

	StmtReadLatestEvent: `
		SELECT id, created_at, event_type, actor, correlation_id, payload, prev_hash, hash
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,

	StmtRecentEvents: `
		SELECT id, created_at, event_type, actor, correlation_id, payload, prev_hash, hash
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1`,

	StmtAllEvents: `
		SELECT id, created_at, event_type, actor, correlation_id, payload, prev_hash, hash
		FROM audit_events
		ORDER BY created_at ASC, id ASC`,

	StmtCountsByKid: `
		SELECT payload->>'kid' AS kid, COUNT(*) AS cnt
		FROM audit_events
		GROUP BY payload->>'kid'
		ORDER BY kid`,

	StmtUpdatePayload: `
		UPDATE audit_events SET payload = $1 WHERE id = $2`,

	StmtScanByKidFirst: `
		SELECT id, created_at, event_type, actor, correlation_id, payload, prev_hash, hash
		FROM audit_events
		WHERE payload->>'kid' = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,

	StmtScanByKidAfter: `
		SELECT id, created_at, event_type, actor, correlation_id, payload, prev_hash, hash
		FROM audit_events
		WHERE payload->>'kid' = $1
		  AND (created_at, id) > ($2, $3)
		ORDER BY created_at ASC, id ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`,

	StmtKeyringStateGet: `
		SELECT active_kid, promoted_at, promoted_by, version
		FROM crypto_keyring_state
		WHERE id = 1`,

	StmtKeyringStateInsert: `
		INSERT INTO crypto_keyring_state (id, active_kid)
		SELECT 1, $1
		WHERE NOT EXISTS (SELECT 1 FROM crypto_keyring_state WHERE id = 1)`,

	StmtKeyringStateAlign: `
		UPDATE crypto_keyring_state
		SET active_kid = $1, promoted_at = now(), promoted_by = NULL
		WHERE id = 1 AND version = 0 AND promoted_by IS NULL`,

	StmtKeyringStatePromote: `
		UPDATE crypto_keyring_state
		SET active_kid = $1, promoted_at = now(), promoted_by = $2, version = version + 1
		WHERE id = 1`,

	StmtPolicyList: `
		SELECT kid, status, deprecated_at, deprecated_until, deprecated_by, updated_at
		FROM crypto_key_policy
		ORDER BY kid`,

	StmtPolicyEnsurePresent: `
		INSERT INTO crypto_key_policy (kid, status)
		SELECT $1, 'ACTIVE'
		WHERE NOT EXISTS (SELECT 1 FROM crypto_key_policy WHERE kid = $1)`,

	StmtPolicyMarkActive: `
		INSERT INTO crypto_key_policy (kid, status, updated_at)
		VALUES ($1, 'ACTIVE', now())
		ON CONFLICT (kid) DO UPDATE
		SET status = 'ACTIVE', deprecated_at = NULL, deprecated_until = NULL, deprecated_by = NULL, updated_at = now()`,

	StmtPolicyDeprecate: `
		INSERT INTO crypto_key_policy (kid, status, deprecated_at, deprecated_until, deprecated_by, updated_at)
		VALUES ($1, 'DEPRECATED', now(), $2, $3, now())
		ON CONFLICT (kid) DO UPDATE
		SET status = 'DEPRECATED', deprecated_at = now(), deprecated_until = $2, deprecated_by = $3, updated_at = now()`,

	StmtJobInsert: `
		INSERT INTO crypto_reencrypt_jobs
			(job_id, from_kid, to_kid, status, batch_size, throttle_ms, requested_by, created_at, updated_at, started_at)
		VALUES ($1, $2, $3, 'RUNNING', $4, $5, $6, now(), now(), now())`,

	StmtJobGet: `
		SELECT job_id, from_kid, to_kid, status, batch_size, throttle_ms,
		       last_created_at, last_id, processed, requested_by, last_error,
		       created_at, updated_at, started_at, finished_at
		FROM crypto_reencrypt_jobs
		WHERE job_id = $1`,

	StmtJobCancel: `
		UPDATE crypto_reencrypt_jobs
		SET status = 'CANCELED', updated_at = now(), finished_at = now()
		WHERE job_id = $1 AND status IN ('NEW', 'RUNNING')`,

	StmtJobClaim: `
		SELECT job_id, from_kid, to_kid, status, batch_size, throttle_ms,
		       last_created_at, last_id, processed, requested_by, last_error,
		       created_at, updated_at, started_at, finished_at
		FROM crypto_reencrypt_jobs
		WHERE status = 'RUNNING'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,

	StmtJobProgress: `
		UPDATE crypto_reencrypt_jobs
		SET processed = processed + $1, last_created_at = $2, last_id = $3, updated_at = now()
		WHERE job_id = $4`,

	StmtJobMarkDone: `
		UPDATE crypto_reencrypt_jobs
		SET status = 'DONE', updated_at = now(), finished_at = now()
		WHERE job_id = $1`,

	StmtJobMarkFailed: `
		UPDATE crypto_reencrypt_jobs
		SET status = 'FAILED', updated_at = now(), finished_at = now(), last_error = $2
		WHERE job_id = $1`,
}
