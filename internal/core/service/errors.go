package service

import "errors"

var (
	ErrNameRequired        = errors.New("product name is required")
	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidMovementType = errors.New("movement type must be IN or OUT")
	ErrInvalidQuantity     = errors.New("movement quantity must be between 1 and 2147483647")
	ErrPersist             = errors.New("persist state")
	ErrCorruptSnapshot     = errors.New("corrupt snapshot")
)

var (
	ErrFileAccessUnsupported = errors.New("direct file access is not available, use upload and download instead")
	ErrNoFileConnected       = errors.New("no workbook file connected")
	ErrUnreadableWorkbook    = errors.New("failed to parse workbook")
)

var (
	ErrEmailRequired  = errors.New("email address is required")
	ErrEmailDomain    = errors.New("email domain is not allowed")
	ErrResendCooldown = errors.New("verification code was sent recently")
	ErrNoPendingCode  = errors.New("no verification code requested for this email")
	ErrInvalidCode    = errors.New("invalid verification code")
	ErrUnauthorized   = errors.New("unauthorized")
)

var (
	ErrImageRequest           = errors.New("image and instruction are required")
	ErrInvalidImage           = errors.New("invalid image format")
	ErrImageEditorUnavailable = errors.New("image editing is not configured, API key is missing")
)
