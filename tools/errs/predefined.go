package errs

// 错误码分段：
// 1xxx 校验类；2xxx 授权/认证类；3xxx 存储类；9xxx 服务端内部
const (
	ValidationErrorCode  = 1001
	MessageEmptyCode     = 1002
	MessageTooLongCode   = 1003
	NotMutualFollowCode  = 2001
	TokenInvalidCode     = 2101
	TokenExpiredCode     = 2102
	RecordNotFoundCode   = 3001
	StoreUnavailableCode = 3002
	ServerInternalError  = 9001
)

var (
	ErrValidation      = NewCodeError(ValidationErrorCode, "invalid request")
	ErrMessageEmpty    = NewCodeError(MessageEmptyCode, "message cannot be empty")
	ErrMessageTooLong  = NewCodeError(MessageTooLongCode, "message cannot exceed 1000 characters")
	ErrNotMutualFollow = NewCodeError(NotMutualFollowCode, "you can only message users who follow you back")
	ErrTokenInvalid    = NewCodeError(TokenInvalidCode, "invalid token")
	ErrTokenExpired    = NewCodeError(TokenExpiredCode, "token expired")
	ErrRecordNotFound  = NewCodeError(RecordNotFoundCode, "record not found")
	// ErrStoreUnavailable 存储暂不可用：读路径可退避重试，写路径必须如实上抛
	ErrStoreUnavailable = NewCodeError(StoreUnavailableCode, "store temporarily unavailable")
	ErrInternal         = NewCodeError(ServerInternalError, "server internal error")
)
