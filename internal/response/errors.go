package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden            ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly    ErrCode = "STUDENT_ACCESS_ONLY"
	ErrInstructorAccessOnly ErrCode = "INSTRUCTOR_ACCESS_ONLY"
	ErrSystemAccessOnly     ErrCode = "SYSTEM_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation       ErrCode = "VALIDATION_ERROR"
	ErrInvalidID        ErrCode = "INVALID_ID"
	ErrInvalidPayload   ErrCode = "INVALID_PAYLOAD"
	ErrInvalidEventType ErrCode = "INVALID_EVENT_TYPE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrInvalidConfiguration ErrCode = "INVALID_CONFIGURATION"
	ErrSessionAlreadyActive ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrAttemptsExhausted    ErrCode = "ATTEMPTS_EXHAUSTED"
	ErrInvalidState         ErrCode = "INVALID_SESSION_STATE"
	ErrPauseNotAllowed      ErrCode = "PAUSE_NOT_ALLOWED"
	ErrSessionExpired       ErrCode = "SESSION_EXPIRED"
	ErrAlreadyCompleted     ErrCode = "ALREADY_COMPLETED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrInstructorAccessOnly:
		return "Sumber daya ini terbatas untuk pengajar."
	case ErrSystemAccessOnly:
		return "Sumber daya ini terbatas untuk layanan sistem."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidEventType:
		return "Jenis kejadian pengawasan tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrInvalidConfiguration:
		return "Ujian ini tidak dikonfigurasi sebagai ujian berwaktu."
	case ErrSessionAlreadyActive:
		return "Anda masih memiliki sesi aktif untuk ujian ini."
	case ErrAttemptsExhausted:
		return "Batas jumlah percobaan untuk ujian ini telah tercapai."
	case ErrInvalidState:
		return "Tindakan ini tidak diperbolehkan pada status sesi saat ini."
	case ErrPauseNotAllowed:
		return "Ujian ini tidak dapat dijeda."
	case ErrSessionExpired:
		return "Waktu ujian telah habis."
	case ErrAlreadyCompleted:
		return "Sesi ujian ini sudah diselesaikan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
