package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserDisabled       = errors.New("账号已被禁用")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAssessmentLocked   = errors.New("assessment already has attempts and can no longer be changed")
	ErrInvalidAssessment  = errors.New("invalid assessment")
)
