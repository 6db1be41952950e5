package update

import (
	"errors"

	apperrors "updraft/internal/errors"
)

// Sentinel errors for each failure class. Every error returned by this
// package is an apperrors.Error whose chain contains one of these.
var (
	ErrParse    = errors.New("malformed release metadata")
	ErrFetch    = errors.New("release metadata fetch failed")
	ErrDownload = errors.New("artifact download failed")
	ErrBackup   = errors.New("backup failed")
	ErrScript   = errors.New("helper script generation failed")
	ErrNoBackup = errors.New("no backup available")
	ErrLaunch   = errors.New("helper launch failed")
)

var sentinelCodes = map[error]apperrors.Code{
	ErrParse:    apperrors.CodeParseFailed,
	ErrFetch:    apperrors.CodeFetchFailed,
	ErrDownload: apperrors.CodeDownloadFailed,
	ErrBackup:   apperrors.CodeBackupFailed,
	ErrScript:   apperrors.CodeScriptFailed,
	ErrNoBackup: apperrors.CodeNoBackup,
	ErrLaunch:   apperrors.CodeLaunchFailed,
}

// fail builds a coded error carrying the sentinel and, when present, the cause.
func fail(sentinel error, msg string, cause error) error {
	chain := sentinel
	if cause != nil {
		chain = errors.Join(sentinel, cause)
	}
	code, ok := sentinelCodes[sentinel]
	if !ok {
		code = apperrors.CodeUnknown
	}
	return apperrors.New(code, msg, chain)
}
