package db

const (
	jobFields = `id, note_id, device_id, status, note_snapshot, error_message, created_by, created_at, updated_at, claimed_at, printed_at`

	InsertJob = `
		INSERT INTO print_jobs (id, note_id, device_id, status, note_snapshot, created_by, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', ?, ?, ?, ?)
	`

	GetJobByID = `
		SELECT ` + jobFields + `
		FROM print_jobs WHERE id = ?
	`

	ListJobsBySubmitter = `
		SELECT ` + jobFields + `
		FROM print_jobs WHERE created_by = ?
		ORDER BY created_at DESC, id DESC
	`

	ListJobsBySubmitterAndStatus = `
		SELECT ` + jobFields + `
		FROM print_jobs WHERE created_by = ? AND status = ?
		ORDER BY created_at DESC, id DESC
	`

	ListPendingJobsForDevice = `
		SELECT ` + jobFields + `
		FROM print_jobs WHERE device_id = ? AND status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	ClaimJob = `
		UPDATE print_jobs SET status = 'printing', claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	MarkJobPrinted = `
		UPDATE print_jobs SET status = 'printed', printed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'printing'
	`

	MarkJobError = `
		UPDATE print_jobs SET status = 'error', error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'printing'
	`

	CancelPendingJob = `
		UPDATE print_jobs SET status = 'error', error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	ListStaleClaimedJobs = `
		SELECT ` + jobFields + `
		FROM print_jobs WHERE status = 'printing' AND claimed_at < ?
		LIMIT ?
	`

	CountJobsByStatus = `
		SELECT status, COUNT(*) FROM print_jobs GROUP BY status
	`

	HasPrintedJobForNote = `
		SELECT COUNT(*) FROM print_jobs WHERE note_id = ? AND status = 'printed'
	`

	SweepTerminalJobs = `
		DELETE FROM print_jobs
		WHERE status IN ('printed', 'error') AND updated_at < ?
	`
)

const (
	InsertHistory = `
		INSERT INTO print_history (id, job_id, printed_by, created_at)
		VALUES (?, ?, ?, ?)
	`

	ListHistoryByPrinter = `
		SELECT h.id, h.job_id, h.printed_by, h.created_at
		FROM print_history h
		WHERE h.printed_by = ?
		ORDER BY h.created_at DESC, h.id DESC
	`

	CountHistoryForJob = `
		SELECT COUNT(*) FROM print_history WHERE job_id = ?
	`
)

const (
	InsertNote = `
		INSERT INTO fiscal_notes (id, owner_id, number, customer_name, total_cents, status, issued_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetNoteByID = `
		SELECT id, owner_id, number, customer_name, total_cents, status, issued_at, created_at
		FROM fiscal_notes WHERE id = ?
	`

	ListNotesByOwner = `
		SELECT id, owner_id, number, customer_name, total_cents, status, issued_at, created_at
		FROM fiscal_notes WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	MarkNotePrinted = `
		UPDATE fiscal_notes SET status = 'printed' WHERE id = ? AND owner_id = ?
	`

	CountNotesByStatus = `
		SELECT status, COUNT(*) FROM fiscal_notes WHERE owner_id = ? GROUP BY status
	`
)

const (
	InsertDevice = `
		INSERT INTO devices (id, name, key_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	GetDeviceByID = `
		SELECT id, name, key_hash, last_seen_at, created_at
		FROM devices WHERE id = ?
	`

	ListDevices = `
		SELECT id, name, key_hash, last_seen_at, created_at
		FROM devices ORDER BY name ASC
	`

	TouchDevice = `
		UPDATE devices SET last_seen_at = ? WHERE id = ?
	`
)
